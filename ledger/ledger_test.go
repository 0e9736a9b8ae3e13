package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestRecordAndAttention(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	l, err := Open(filepath.Join(t.TempDir(), "trials.db"))
	is.NoErr(err)
	defer l.Close()

	start := time.UnixMilli(1_700_000_000_000)
	ok := Entry{JobKey: 0xfeedfacecafebeef, Board: 3, Square: 7, GoesFirst: true,
		Worker: 0, Port: 12340, Offset: 0, StartedAt: start, Elapsed: 1500 * time.Millisecond, Status: StatusOK}
	bad := Entry{JobKey: 42, Board: 1, Square: 1, Worker: 1, Port: 12351, Offset: 1,
		StartedAt: start, Elapsed: time.Second, Status: "stderr", Detail: "T:3 0.5"}
	is.NoErr(l.Record(ctx, ok))
	is.NoErr(l.Record(ctx, bad))

	all, err := l.Entries(ctx)
	is.NoErr(err)
	is.Equal(len(all), 2)
	is.Equal(all[0], ok)
	is.Equal(all[1], bad)

	att, err := l.Attention(ctx)
	is.NoErr(err)
	is.Equal(att, []Entry{bad})
}

func TestReopenKeepsRows(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trials.db")

	l, err := Open(path)
	is.NoErr(err)
	is.NoErr(l.Record(ctx, Entry{JobKey: 1, Board: 1, Square: 1, Status: "spawn-failed",
		StartedAt: time.UnixMilli(0)}))
	is.NoErr(l.Close())

	l, err = Open(path)
	is.NoErr(err)
	defer l.Close()
	att, err := l.Attention(ctx)
	is.NoErr(err)
	is.Equal(len(att), 1)
	is.Equal(att[0].Status, "spawn-failed")
}
