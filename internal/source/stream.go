package source

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-cli/internal/fetcher"
)

// Stream reads the rows of a CSV or JSON export from r. XLSX exports need
// random access; use StreamFile for them.
func Stream(ctx context.Context, d *Definition, r io.Reader) (<-chan Row, <-chan error) {
	return stream(ctx, d, r, nil)
}

// StreamFile reads the rows of an export stored at path. The file is closed
// when the stream ends.
func StreamFile(ctx context.Context, d *Definition, path string) (<-chan Row, <-chan error) {
	if d.Format == FormatXLSX {
		ctx, cancel := context.WithCancel(ctx)
		cells, errs := fetcher.StreamXLSX(ctx, path, fetcher.XLSXOptions{
			SheetName: d.Sheet,
			SkipRows:  d.SkipRows,
		})
		return zipHeader(ctx, cancel, d, cells, errs, nil)
	}

	f, err := os.Open(path)
	if err != nil {
		return failed(eris.Wrapf(err, "source %s: open %s", d.Name, path))
	}
	return stream(ctx, d, f, f)
}

func stream(ctx context.Context, d *Definition, r io.Reader, closer io.Closer) (<-chan Row, <-chan error) {
	ctx, cancel := context.WithCancel(ctx)
	switch d.Format {
	case FormatJSON:
		items, errs := fetcher.DecodeJSONArray[map[string]any](ctx, r)
		return relayJSON(ctx, cancel, items, errs, closer)
	case FormatXLSX:
		cancel()
		if closer != nil {
			_ = closer.Close()
		}
		return failed(eris.Errorf("source %s: xlsx exports must be read from a file", d.Name))
	default:
		opts := fetcher.CSVOptions{LazyQuotes: true}
		if d.Delimiter != "" {
			opts.Delimiter = []rune(d.Delimiter)[0]
		}
		cells, errs := fetcher.StreamCSV(ctx, r, opts)
		return zipHeader(ctx, cancel, d, cells, errs, closer)
	}
}

func failed(err error) (<-chan Row, <-chan error) {
	rowCh := make(chan Row)
	errCh := make(chan error, 1)
	errCh <- err
	close(rowCh)
	close(errCh)
	return rowCh, errCh
}

// zipHeader treats the first row as the header, checks it against the
// definition, and emits the remaining rows keyed by column name.
func zipHeader(ctx context.Context, cancel context.CancelFunc, d *Definition, in <-chan []string, inErr <-chan error, closer io.Closer) (<-chan Row, <-chan error) {
	rowCh := make(chan Row, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(rowCh)
		defer cancel()
		if closer != nil {
			defer closer.Close() //nolint:errcheck
		}

		var header []string
		num := 0
		for cells := range in {
			if header == nil {
				header = cells
				if err := d.CheckHeader(header); err != nil {
					errCh <- err
					return
				}
				continue
			}
			num++
			select {
			case rowCh <- NewRow(num, header, cells):
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "source: context cancelled")
				return
			}
		}
		if err := <-inErr; err != nil {
			errCh <- err
			return
		}
		if header == nil {
			errCh <- eris.Errorf("source %s: export is empty", d.Name)
		}
	}()

	return rowCh, errCh
}

// relayJSON flattens JSON objects into rows. Nested objects become dotted
// column names, e.g. "location.latitude".
func relayJSON(ctx context.Context, cancel context.CancelFunc, in <-chan map[string]any, inErr <-chan error, closer io.Closer) (<-chan Row, <-chan error) {
	rowCh := make(chan Row, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(rowCh)
		defer cancel()
		if closer != nil {
			defer closer.Close() //nolint:errcheck
		}

		num := 0
		for obj := range in {
			num++
			values := make(map[string]string, len(obj))
			flatten("", obj, values)
			select {
			case rowCh <- Row{Num: num, Values: values}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "source: context cancelled")
				return
			}
		}
		if err := <-inErr; err != nil {
			errCh <- err
		}
	}()

	return rowCh, errCh
}

func flatten(prefix string, obj map[string]any, out map[string]string) {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch t := v.(type) {
		case nil:
			out[key] = ""
		case string:
			out[key] = t
		case json.Number:
			out[key] = t.String()
		case bool:
			out[key] = strconv.FormatBool(t)
		case map[string]any:
			flatten(key, t, out)
		default:
			b, err := json.Marshal(t)
			if err == nil {
				out[key] = string(b)
			}
		}
	}
}
