package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/kumarlokesh/cow-trie/internal/store"
)

var stdout io.Writer = os.Stdout

func runPut(st *store.Store, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: put <key> <value>")
	}
	v, err := st.Put(args[0], []byte(args[1]))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "OK version=%d lsn=%d\n", v.ID, v.LSN)
	return nil
}

func runGet(st *store.Store, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: get <key>")
	}
	value, err := st.Get(args[0])
	if errors.Is(err, store.ErrKeyNotFound) {
		return fmt.Errorf("key %q not found", args[0])
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s\n", value)
	return nil
}

func runDelete(st *store.Store, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: delete <key>")
	}
	v, err := st.Delete(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "OK version=%d lsn=%d\n", v.ID, v.LSN)
	return nil
}

func runList(st *store.Store, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	prefix := fs.String("prefix", "", "Only list keys with this prefix")
	values := fs.Bool("values", false, "Print values as well")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	st.Scan(*prefix, func(key string, value []byte) bool {
		if *values {
			fmt.Fprintf(stdout, "%s\t%s\n", key, value)
		} else {
			fmt.Fprintln(stdout, key)
		}
		return true
	})
	return nil
}

// txnOps collects repeated -put and -delete flags in order
type txnOps struct {
	ops []txnOp
}

type txnOp struct {
	key, value string
	delete     bool
}

type putFlag struct{ *txnOps }

func (f putFlag) String() string { return "" }

func (f putFlag) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	f.ops = append(f.ops, txnOp{key: key, value: value})
	return nil
}

type deleteFlag struct{ *txnOps }

func (f deleteFlag) String() string { return "" }

func (f deleteFlag) Set(s string) error {
	f.ops = append(f.ops, txnOp{key: s, delete: true})
	return nil
}

func runTxn(st *store.Store, args []string) error {
	ops := &txnOps{}
	fs := flag.NewFlagSet("txn", flag.ContinueOnError)
	fs.Var(putFlag{ops}, "put", "Set key=value (repeatable)")
	fs.Var(deleteFlag{ops}, "delete", "Remove key (repeatable)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	if len(ops.ops) == 0 {
		return fmt.Errorf("txn needs at least one -put or -delete")
	}

	tx, err := st.Begin()
	if err != nil {
		return err
	}
	for _, op := range ops.ops {
		if op.delete {
			err = tx.Delete(op.key)
		} else {
			err = tx.Put(op.key, []byte(op.value))
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error().Err(rbErr).Uint64("txid", tx.ID()).Msg("Rollback failed")
			}
			return err
		}
	}

	v, err := tx.Commit()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Committed transaction %d: version=%d lsn=%d writes=%d\n", tx.ID(), v.ID, v.LSN, len(ops.ops))
	return nil
}

func runCheckpoint(st *store.Store, args []string) error {
	lsn, err := st.Checkpoint()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Checkpoint written at lsn=%d\n", lsn)
	return nil
}

// runLog prints the committed WAL records in commit order
func runLog(st *store.Store, args []string) error {
	records, err := st.LogRecords()
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, "LSN      | TxID  | Type     | Key              | Value")
	fmt.Fprintln(stdout, "---------|-------|----------|------------------|-----------------")
	for _, r := range records {
		fmt.Fprintf(stdout, "%-8d | %-5d | %-8s | %-16s | %s\n",
			r.LSN, r.TxID, r.Type, string(r.Key), string(r.Value))
	}
	return nil
}
