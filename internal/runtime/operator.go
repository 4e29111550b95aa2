package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/recall/internal/config"
)

// ErrRefused is returned for operator commands that exist but are disabled.
var ErrRefused = errors.New("operator command refused")

// Operator is one /name/ command typed by the operator.
type Operator struct {
	Name    string
	Setting string // config setting changed by this command, if any
	Help    string
}

// NeedsValue reports whether the command takes a value.
func (o Operator) NeedsValue() bool { return o.Setting != "" }

var operators = map[string]Operator{
	"q":     {Name: "q", Help: "save memories and quit"},
	"d":     {Name: "d", Help: "delete the last turn from this session"},
	"e":     {Name: "e", Help: "execute code (disabled)"},
	"m":     {Name: "m", Setting: config.NameModel, Help: "set the model"},
	"max":   {Name: "max", Setting: config.NameMaxTokens, Help: "set max tokens"},
	"temp":  {Name: "temp", Setting: config.NameTemperature, Help: "set temperature"},
	"freq":  {Name: "freq", Setting: config.NameFrequencyPenalty, Help: "set frequency penalty"},
	"sl":    {Name: "sl", Setting: config.NamePageTextCap, Help: "set the search page-text cap"},
	"top_k": {Name: "top_k", Setting: config.NameTopK, Help: "set how many memories to retrieve"},
}

// ParseOperator recognizes "/name/" or "/name/ value". Lines that are not a
// known operator command return ok=false and go to the model.
func ParseOperator(line string) (op Operator, value string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return Operator{}, "", false
	}
	end := strings.Index(line[1:], "/")
	if end < 0 {
		return Operator{}, "", false
	}
	name := strings.ToLower(line[1 : end+1])
	op, ok = operators[name]
	if !ok {
		return Operator{}, "", false
	}
	return op, strings.TrimSpace(line[end+2:]), true
}

// OperatorHelp lists the commands, one per line.
func OperatorHelp() string {
	names := []string{"q", "d", "m", "max", "temp", "freq", "sl", "top_k", "e"}
	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "/%s/  %s\n", n, operators[n].Help)
	}
	return b.String()
}

// Operate runs an operator command. quit is true once the session has been
// flushed and the caller should exit.
func (r *Controller) Operate(ctx context.Context, op Operator, value string) (quit bool, err error) {
	switch op.Name {
	case "q":
		_, err := r.Flush(ctx)
		return true, err
	case "d":
		t, err := r.Undo()
		if err == nil {
			r.ui.Log("removed " + t.Display)
		}
		return false, err
	case "e":
		err := fmt.Errorf("%w: code execution is disabled", ErrRefused)
		r.ui.Report(FailureOperator, err)
		return false, err
	}
	if op.Setting == "" {
		return false, fmt.Errorf("unknown operator command /%s/", op.Name)
	}
	if err := r.Set(op.Setting, value); err != nil {
		return false, err
	}
	r.ui.Log(fmt.Sprintf("%s set to %s", op.Setting, value))
	return false, nil
}
