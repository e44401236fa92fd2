package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"pollpulse/internal/domain/poll"
	"pollpulse/internal/engine"
)

// Results renders a tally as CSV with header Option,Votes,Percent. Rows
// follow the poll's declared option order; percent is "NN.NN%", or "0%" for
// every option of a zero-vote poll.
func Results(p poll.Poll, tally engine.Tally) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"Option", "Votes", "Percent"}); err != nil {
		return nil, err
	}
	for _, option := range p.Options {
		count := tally.Counts[option]
		row := []string{option, fmt.Sprintf("%d", count), percentCell(count, tally.Total)}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func percentCell(count, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", float64(count)/float64(total)*100)
}

// Definition renders a poll definition as CSV with header Question,Options;
// the options land in one field joined by ", ".
func Definition(p poll.Poll) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"Question", "Options"}); err != nil {
		return nil, err
	}
	if err := w.Write([]string{p.Question, strings.Join(p.Options, ", ")}); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
