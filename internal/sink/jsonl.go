package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-cli/internal/model"
)

// JSONL writes one emitted record mapping per line.
type JSONL struct {
	buf    *bufio.Writer
	enc    *json.Encoder
	closer io.Closer
}

// NewJSONL creates a JSON Lines sink over w. If w is an io.Closer it is
// closed by Close.
func NewJSONL(w io.Writer) *JSONL {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	s := &JSONL{buf: buf, enc: enc}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

func (s *JSONL) Write(_ context.Context, rec *model.ProviderRecord) error {
	if err := s.enc.Encode(rec.Map()); err != nil {
		return eris.Wrapf(err, "jsonl sink: write %s", rec.ProviderURL)
	}
	return nil
}

// Close flushes buffered lines and closes the underlying file, if any.
func (s *JSONL) Close(_ context.Context) error {
	err := eris.Wrap(s.buf.Flush(), "jsonl sink: flush")
	if s.closer != nil {
		if cerr := s.closer.Close(); cerr != nil && err == nil {
			err = eris.Wrap(cerr, "jsonl sink: close")
		}
	}
	return err
}
