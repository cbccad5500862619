// cat dumps every row of a local Parquet file to stdout as nested
// dotted-path text, descending into every top-level field.
package main

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/hexlake/pqscan/bytestream"
	"github.com/hexlake/pqscan/compress"
	"github.com/hexlake/pqscan/footer"
	"github.com/hexlake/pqscan/internal/scanlog"
	"github.com/hexlake/pqscan/internal/scanmetrics"
	"github.com/hexlake/pqscan/schema"
	"github.com/hexlake/pqscan/scanner"
	"github.com/hexlake/pqscan/scannerctx"
	"github.com/hexlake/pqscan/value"
	"github.com/prometheus/client_golang/prometheus"
)

type catFlags struct {
	_     struct{} `help:"Dump the content of the provided parquet file to stdout"`
	Debug bool     `flag:"--debug" help:"Display debugging logs on stderr" default:"false"`
}

type localFile struct{ f *os.File }

func (lf localFile) Size() (int64, error) {
	st, err := lf.f.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

func (lf localFile) ReadRange(offset, length int64) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := lf.f.ReadAt(buf, offset); err != nil {
		return nil, err
	}
	return buf, nil
}

func catCommand(flags catFlags, path string) {
	file, err := os.Open(path)
	if err != nil {
		perrorf("could not open file: %s", err)
		return
	}
	defer file.Close()

	fs := localFile{f: file}
	open := func(start, end int64, scheduleImmediately bool) (bytestream.ByteStream, error) {
		buf, err := fs.ReadRange(start, end-start)
		if err != nil {
			return nil, err
		}
		return bytestream.NewSlice(buf, start), nil
	}

	logger := scanlog.NewNop()
	if flags.Debug {
		logger = scanlog.NewLogfmt()
	}
	metrics := scanmetrics.New(prometheus.NewRegistry())
	ctx := scannerctx.New(scannerctx.DefaultConfig(), nil).WithLogger(logger).WithMetrics(metrics)

	ft, err := footer.Read(fs)
	if err != nil {
		perrorf("could not read footer: %s", err)
		return
	}
	tree, err := schema.Build(ft.Meta.Schema)
	if err != nil {
		perrorf("could not build schema: %s", err)
		return
	}

	var columns []scanner.RequestedColumn
	for i := range tree.Root.Children {
		columns = append(columns, scanner.RequestedColumn{
			Path:    schema.RequestedPath{i},
			Default: value.NullSlot(),
		})
	}

	size, err := fs.Size()
	if err != nil {
		perrorf("could not stat file: %s", err)
		return
	}
	sc, err := scanner.Open(ctx, fs, open, compress.NewRegistry(), columns, scanner.Options{}, 0, size)
	if err != nil {
		perrorf("could not open scan: %s", err)
		return
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	names := make([]string, len(tree.Root.Children))
	for i, c := range tree.Root.Children {
		names[i] = c.Element.Name
	}

	for {
		batch, err := sc.Next()
		if err != nil {
			perrorf("error: %s", err)
			return
		}
		if batch == nil {
			break
		}
		for _, row := range batch.Rows {
			printRow(w, names, row)
		}
		for i := 0; i < batch.EmptyCount; i++ {
			fmt.Fprintln(w)
		}
	}
}

func printRow(w *bufio.Writer, names []string, row []value.Slot) {
	for i, slot := range row {
		printField(w, 0, names[i], slot)
	}
	fmt.Fprintln(w)
}

func printField(w *bufio.Writer, depth int, name string, slot value.Slot) {
	writeDepth(w, depth)
	fmt.Fprintf(w, "%s = ", name)
	if slot.Null {
		fmt.Fprintln(w, "null")
		return
	}
	printValue(w, depth, slot.Value)
}

func printValue(w *bufio.Writer, depth int, v value.Value) {
	switch v.Kind {
	case value.KindNull:
		fmt.Fprintln(w, "null")
	case value.KindBool:
		fmt.Fprintln(w, v.Bool)
	case value.KindInt32:
		fmt.Fprintln(w, strconv.FormatInt(int64(v.Int32), 10))
	case value.KindInt64:
		fmt.Fprintln(w, strconv.FormatInt(v.Int64, 10))
	case value.KindFloat32:
		fmt.Fprintln(w, strconv.FormatFloat(float64(v.Float32), 'g', -1, 32))
	case value.KindFloat64:
		fmt.Fprintln(w, strconv.FormatFloat(v.Float64, 'g', -1, 64))
	case value.KindInt96:
		fmt.Fprintln(w, v.Int96.UnixNanos())
	case value.KindBytes:
		writeBase64(w, v.Bytes)
		fmt.Fprintln(w)
	case value.KindList:
		fmt.Fprintln(w)
		for i, item := range v.Items {
			writeDepth(w, depth+1)
			fmt.Fprintf(w, "[%d] = ", i)
			printValue(w, depth+1, item)
		}
	case value.KindStruct:
		fmt.Fprintln(w)
		for i, item := range v.Items {
			writeDepth(w, depth+1)
			fmt.Fprintf(w, "field%d = ", i)
			printValue(w, depth+1, item)
		}
	}
}

func writeDepth(w io.Writer, depth int) {
	for i := 0; i < depth; i++ {
		_, _ = io.WriteString(w, ".")
	}
}

func writeBase64(w *bufio.Writer, b []byte) {
	enc := base64.StdEncoding
	buf := make([]byte, enc.EncodedLen(len(b)))
	enc.Encode(buf, b)
	_, _ = w.Write(buf)
}
