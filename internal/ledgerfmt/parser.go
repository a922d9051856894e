// Package ledgerfmt parses and renders the plain-text journal format: dated
// directives (open, transaction, balance, price), indented postings and
// ordered key/value metadata, with include resolution and a booking step that
// fills in elided posting amounts.
package ledgerfmt

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"fjacquet/ledger-reconcile/internal/amountparse"
	"fjacquet/ledger-reconcile/internal/models"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger sets a custom logger for this package
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		log = logger
	}
}

// Options carries bookkeeping produced while parsing.
type Options struct {
	// Filenames lists every file the parse touched, includes resolved.
	Filenames []string
}

var (
	directiveRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\s+(\S+)(?:\s+(.*))?$`)
	includeRe   = regexp.MustCompile(`^include\s+"([^"]+)"\s*$`)
	metaRe      = regexp.MustCompile(`^\s+([a-z][A-Za-z0-9_-]*):\s*(.*?)\s*$`)
	postingRe   = regexp.MustCompile(`^\s+(\S[^;]*?)(?:\s{2,}([^;]+?))?\s*(?:;.*)?$`)
	contRe      = regexp.MustCompile(`^\s+\S`)
	accountRe   = regexp.MustCompile(`^[A-Z][A-Za-z0-9-]*(?::[A-Za-z0-9-]+)+$|^[A-Z][A-Za-z0-9-]*$`)
)

type parser struct {
	entries []models.Directive
	errs    []error
	opts    *Options
}

// ParseFile parses a journal file, following include directives relative to
// the including file.
func ParseFile(path string) ([]models.Directive, []error, *Options) {
	p := &parser{opts: &Options{}}
	p.parsePath(path)
	return p.entries, p.errs, p.opts
}

// ParseString parses journal text that is not backed by a file, such as a
// freshly rendered transaction. Line numbers are 1-based within text.
func ParseString(text string) ([]models.Directive, []error, *Options) {
	p := &parser{opts: &Options{}}
	p.parseLines("", strings.Split(text, "\n"))
	return p.entries, p.errs, p.opts
}

func (p *parser) parsePath(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("failed to read journal file: %w", err))
		return
	}
	p.opts.Filenames = append(p.opts.Filenames, path)
	p.parseLines(path, strings.Split(string(data), "\n"))
}

func (p *parser) errorf(filename string, lineno int, format string, args ...interface{}) {
	prefix := fmt.Sprintf("%s:%d: ", filename, lineno)
	p.errs = append(p.errs, fmt.Errorf(prefix+format, args...))
}

func (p *parser) parseLines(filename string, lines []string) {
	i := 0
	for i < len(lines) {
		line := lines[i]
		lineno := i + 1
		i++

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, ";") {
			continue
		}
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			p.errorf(filename, lineno, "unexpected indented line outside a directive: %s", trimmed)
			continue
		}

		if m := includeRe.FindStringSubmatch(line); m != nil {
			p.include(filename, lineno, m[1])
			continue
		}
		if strings.HasPrefix(trimmed, "option ") || strings.HasPrefix(trimmed, "plugin ") {
			continue
		}

		m := directiveRe.FindStringSubmatch(line)
		if m == nil {
			p.errorf(filename, lineno, "unable to parse directive: %s", trimmed)
			continue
		}
		date, err := time.Parse(models.DateLayout, m[1])
		if err != nil {
			p.errorf(filename, lineno, "invalid date %q: %v", m[1], err)
			continue
		}
		date = date.UTC()

		loc := models.FileLocation{Filename: filename, Line: lineno}
		switch m[2] {
		case "open":
			i = p.parseOpen(filename, lines, i, date, m[3], loc)
		case "balance":
			i = p.parseBalance(filename, lines, i, date, m[3], loc)
		case "price":
			i = p.parsePrice(filename, lines, i, date, m[3], loc)
		case "txn", "*", "!":
			flag := m[2]
			if flag == "txn" {
				flag = "*"
			}
			i = p.parseTransaction(filename, lines, i, date, flag, m[3], loc)
		default:
			// Directive kinds outside the closed set (close, note, pad,
			// event) are skipped along with their continuation lines.
			log.WithFields(logrus.Fields{"file": filename, "line": lineno, "kind": m[2]}).
				Debug("Skipping unsupported directive")
			i = skipContinuation(lines, i)
		}
	}
}

func (p *parser) include(filename string, lineno int, pattern string) {
	if filename == "" {
		p.errorf(filename, lineno, "include is not allowed in string input")
		return
	}
	paths, _ := filepath.Glob(filepath.Join(filepath.Dir(filename), pattern))
	if len(paths) == 0 {
		p.errorf(filename, lineno, "unable to include file(%s): not found", pattern)
		return
	}
	for _, inc := range paths {
		p.parsePath(inc)
	}
}

func skipContinuation(lines []string, i int) int {
	for i < len(lines) && contRe.MatchString(lines[i]) {
		i++
	}
	return i
}

// parseMeta consumes metadata continuation lines into meta, returning the
// next unconsumed index.
func (p *parser) parseMeta(filename string, lines []string, i int, meta *models.Meta) int {
	for i < len(lines) && contRe.MatchString(lines[i]) {
		m := metaRe.FindStringSubmatch(lines[i])
		if m == nil {
			break
		}
		meta.Set(m[1], unquoteValue(m[2]))
		i++
	}
	return i
}

func (p *parser) parseOpen(filename string, lines []string, i int, date time.Time, rest string, loc models.FileLocation) int {
	fields := strings.Fields(rest)
	if len(fields) < 1 || !accountRe.MatchString(fields[0]) {
		p.errorf(filename, loc.Line, "invalid open directive: %s", rest)
		return skipContinuation(lines, i)
	}
	open := &models.Open{
		EntryDate: date,
		Account:   fields[0],
		Meta:      models.NewMeta(),
		Loc:       loc,
	}
	i = p.parseMeta(filename, lines, i, open.Meta)
	p.entries = append(p.entries, open)
	return skipContinuation(lines, i)
}

func (p *parser) parseBalance(filename string, lines []string, i int, date time.Time, rest string, loc models.FileLocation) int {
	fields := strings.Fields(rest)
	if len(fields) != 3 {
		p.errorf(filename, loc.Line, "invalid balance directive: %s", rest)
		return skipContinuation(lines, i)
	}
	amount, err := parseJournalAmount(fields[1] + " " + fields[2])
	if err != nil {
		p.errorf(filename, loc.Line, "invalid balance amount: %v", err)
		return skipContinuation(lines, i)
	}
	p.entries = append(p.entries, &models.Balance{
		EntryDate: date,
		Account:   fields[0],
		Amount:    amount,
		Loc:       loc,
	})
	return skipContinuation(lines, i)
}

func (p *parser) parsePrice(filename string, lines []string, i int, date time.Time, rest string, loc models.FileLocation) int {
	fields := strings.Fields(rest)
	if len(fields) != 3 {
		p.errorf(filename, loc.Line, "invalid price directive: %s", rest)
		return skipContinuation(lines, i)
	}
	amount, err := parseJournalAmount(fields[1] + " " + fields[2])
	if err != nil {
		p.errorf(filename, loc.Line, "invalid price amount: %v", err)
		return skipContinuation(lines, i)
	}
	p.entries = append(p.entries, &models.Price{
		EntryDate: date,
		Commodity: fields[0],
		Amount:    amount,
		Loc:       loc,
	})
	return skipContinuation(lines, i)
}

func (p *parser) parseTransaction(filename string, lines []string, i int, date time.Time, flag, rest string, loc models.FileLocation) int {
	payee, narration := parseStrings(rest)
	txn := &models.Transaction{
		EntryDate: date,
		Flag:      flag,
		Payee:     payee,
		Narration: narration,
		Meta:      models.NewMeta(),
		Loc:       loc,
	}

	var current *models.Posting
	for i < len(lines) && contRe.MatchString(lines[i]) {
		line := lines[i]
		lineno := i + 1
		i++

		if m := metaRe.FindStringSubmatch(line); m != nil {
			if current != nil {
				current.Meta.Set(m[1], unquoteValue(m[2]))
			} else {
				txn.Meta.Set(m[1], unquoteValue(m[2]))
			}
			continue
		}

		m := postingRe.FindStringSubmatch(line)
		if m == nil || !accountRe.MatchString(strings.TrimSpace(m[1])) {
			if strings.HasPrefix(strings.TrimSpace(line), ";") {
				continue
			}
			p.errorf(filename, lineno, "invalid posting: %s", strings.TrimSpace(line))
			continue
		}

		posting := &models.Posting{
			Account: strings.TrimSpace(m[1]),
			Elided:  true,
			Meta:    models.NewMeta(),
			Loc:     models.FileLocation{Filename: filename, Line: lineno},
		}
		if m[2] != "" {
			amount, err := parseJournalAmount(strings.TrimSpace(m[2]))
			if err != nil {
				p.errorf(filename, lineno, "invalid posting amount: %v", err)
				continue
			}
			posting.Amount = amount
			posting.Elided = false
		}
		txn.Postings = append(txn.Postings, posting)
		current = posting
	}

	if len(txn.Postings) < 2 {
		p.errorf(filename, loc.Line, "transaction needs at least two postings")
		return i
	}
	p.entries = append(p.entries, txn)
	return i
}

// parseJournalAmount parses "<number> <CURRENCY>" as written in postings.
func parseJournalAmount(text string) (models.Amount, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return models.Amount{}, fmt.Errorf("expected '<number> <currency>', got %q", text)
	}
	number, err := amountparse.ParseNumber(fields[0])
	if err != nil {
		return models.Amount{}, err
	}
	return models.NewAmount(number, fields[1]), nil
}

// parseStrings extracts up to two quoted strings: `"Narration"` or
// `"Payee" "Narration"`.
func parseStrings(rest string) (payee, narration string) {
	var parts []string
	for rest != "" {
		rest = strings.TrimSpace(rest)
		if !strings.HasPrefix(rest, `"`) {
			break
		}
		end := 1
		for end < len(rest) {
			if rest[end] == '\\' {
				end += 2
				continue
			}
			if rest[end] == '"' {
				break
			}
			end++
		}
		if end >= len(rest) {
			break
		}
		parts = append(parts, unquoteValue(rest[:end+1]))
		rest = rest[end+1:]
	}
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return "", parts[0]
	default:
		return parts[0], parts[1]
	}
}

// unquoteValue decodes a quoted metadata or narration value, passing raw
// tokens (dates, plain words) through unchanged.
func unquoteValue(value string) string {
	if strings.HasPrefix(value, `"`) {
		if unquoted, err := strconv.Unquote(value); err == nil {
			return unquoted
		}
	}
	return value
}
