package cmd

import (
	"fmt"
	"io"

	"github.com/transientvariable/eventstreams/pkg/schema/recentchange"

	"github.com/transientvariable/log-go"
)

// printer writes a one line summary of each change.
type printer struct {
	out io.Writer
}

func (p *printer) connected() {
	p.print("Connected.\n")
}

func (p *printer) edit(e *recentchange.EditEvent) {
	p.print("%s: %s edited %s\n", e.ServerName, e.User, e.Title)
}

func (p *printer) logEntry(e *recentchange.LogEvent) {
	p.print("%s: %s did %s/%s on %s\n", e.ServerName, e.User, e.LogType, e.LogAction, e.Title)
}

func (p *printer) print(format string, args ...any) {
	if _, err := fmt.Fprintf(p.out, format, args...); err != nil {
		log.Error("[cmd:print]", log.Err(err))
	}
}
