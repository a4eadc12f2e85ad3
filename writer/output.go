package writer

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// ResultPrinter renders command results as one JSON document per line.
type ResultPrinter struct {
	out    io.Writer
	pretty bool
}

func NewResultPrinter(out io.Writer, pretty bool) *ResultPrinter {
	return &ResultPrinter{out: out, pretty: pretty}
}

func (p *ResultPrinter) Print(v interface{}) error {
	var (
		data []byte
		err  error
	)
	if p.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	data = append(data, '\n')
	_, err = p.out.Write(data)
	return err
}
