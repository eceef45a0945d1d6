// Command pagestore is a hand-driven REPL over the storage core: a table
// heap backed by the buffer pool, with a B+ tree index on the id column.
// It exists to exercise the engine interactively, not as a product surface.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/quanla/pagestore/internal/btree"
	"github.com/quanla/pagestore/internal/bufferpool"
	"github.com/quanla/pagestore/internal/disk"
	"github.com/quanla/pagestore/internal/heap"
	"github.com/quanla/pagestore/internal/record"
)

func schema() record.Schema {
	return record.Schema{Cols: []record.Column{
		{Name: "id", Type: record.ColInt32},
		{Name: "name", Type: record.ColText},
	}}
}

type session struct {
	bpm    bufferpool.BufferPool
	table  *heap.Table
	index  *btree.Tree
	nextID int32
}

func newSession(bpm bufferpool.BufferPool) (*session, error) {
	table, err := heap.NewTable(bpm, schema())
	if err != nil {
		return nil, fmt.Errorf("pagestore: create table: %w", err)
	}
	index, err := btree.New(bpm, btree.KeyType{Kind: btree.KeyInteger})
	if err != nil {
		return nil, fmt.Errorf("pagestore: create index: %w", err)
	}
	return &session{bpm: bpm, table: table, index: index}, nil
}

func (s *session) insert(name string) (int32, error) {
	id := s.nextID
	s.nextID++

	rowID, err := s.table.InsertTuple([]any{id, name})
	if err != nil {
		return 0, err
	}
	if err := s.index.Insert(btree.IntegerKey(id), rowID); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *session) get(id int32) (string, error) {
	rowID, found, err := s.index.Search(btree.IntegerKey(id))
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("no row with id %d", id)
	}
	row, err := s.table.GetTuple(rowID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d\t%s", row[0].(int32), row[1].(string)), nil
}

func (s *session) scan() ([]string, error) {
	var lines []string
	err := s.table.Scan(func(_ heap.RowID, row []any) error {
		lines = append(lines, fmt.Sprintf("%d\t%s", row[0].(int32), row[1].(string)))
		return nil
	})
	return lines, err
}

func (s *session) rangeScan(lo, hi int32) ([]string, error) {
	start := btree.IntegerKey(lo)
	end := btree.IntegerKey(hi + 1) // Iterate's end key is exclusive
	it, err := s.index.Iterate(&start, &end)
	if err != nil {
		return nil, err
	}

	var lines []string
	for {
		key, rowID, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		row, err := s.table.GetTuple(rowID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, fmt.Sprintf("%d\t%s", key.Int, row[1].(string)))
	}
	return lines, nil
}

func (s *session) dispatch(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}

	switch fields[0] {
	case "insert":
		if len(fields) < 2 {
			return "", fmt.Errorf("usage: insert <name>")
		}
		id, err := s.insert(strings.Join(fields[1:], " "))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("inserted id=%d", id), nil

	case "get":
		if len(fields) != 2 {
			return "", fmt.Errorf("usage: get <id>")
		}
		id, err := strconv.Atoi(fields[1])
		if err != nil {
			return "", err
		}
		return s.get(int32(id))

	case "scan":
		lines, err := s.scan()
		if err != nil {
			return "", err
		}
		return strings.Join(lines, "\n"), nil

	case "range":
		if len(fields) != 3 {
			return "", fmt.Errorf("usage: range <lo> <hi>")
		}
		lo, err := strconv.Atoi(fields[1])
		if err != nil {
			return "", err
		}
		hi, err := strconv.Atoi(fields[2])
		if err != nil {
			return "", err
		}
		lines, err := s.rangeScan(int32(lo), int32(hi))
		if err != nil {
			return "", err
		}
		return strings.Join(lines, "\n"), nil

	default:
		return "", fmt.Errorf("unknown command %q (try insert, get, scan, range)", fields[0])
	}
}

func main() {
	dbPath := flag.String("db", "pagestore.db", "path to the database file")
	frames := flag.Int("frames", 256, "number of buffer pool frames")
	directIO := flag.Bool("direct-io", false, "bypass the OS page cache where supported")
	actor := flag.Bool("actor", false, "use the single-goroutine actor buffer pool instead of the shared one")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	dm, err := disk.Open(*dbPath, *directIO)
	if err != nil {
		log.Fatalf("pagestore: open %s: %v", *dbPath, err)
	}
	defer dm.Close()

	var bpm bufferpool.BufferPool
	if *actor {
		bpm = bufferpool.NewActorBPM(dm, *frames)
	} else {
		bpm = bufferpool.NewSharedBPM(dm, *frames)
	}
	defer bpm.Close()

	sess, err := newSession(bpm)
	if err != nil {
		log.Fatalf("pagestore: %v", err)
	}

	currentDir, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	history := filepath.Join(currentDir, ".pagestore_history")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "pagestore> ",
		HistoryFile: history,
	})
	if err != nil {
		log.Fatalf("pagestore: readline: %v", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		out, err := sess.dispatch(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		if out != "" {
			fmt.Println(out)
		}
	}
}
