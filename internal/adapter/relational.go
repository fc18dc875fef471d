package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fusebox-ai/fusebox/internal/domain"
)

// identRe guards table/column names interpolated into SQL; placeholders
// cannot carry identifiers.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// relationalStore queries a table with per-token LIKE matching. Row match
// strength is the fraction of query tokens present:
// rawScore = matchedTokens / totalTokens.
type relationalStore struct {
	src     domain.Source
	dsn     string
	table   string
	content string
	tsCol   string
}

func newRelationalStore(src domain.Source) (Adapter, error) {
	dsn := src.Config["dsn"]
	table := src.Config["table"]
	if dsn == "" || table == "" {
		return nil, fmt.Errorf("%w: relational_store source %s requires dsn and table", domain.ErrValidation, src.ID)
	}
	content := src.Config["content_column"]
	if content == "" {
		content = "content"
	}
	tsCol := src.Config["timestamp_column"]

	for _, ident := range []string{table, content} {
		if !identRe.MatchString(ident) {
			return nil, fmt.Errorf("%w: invalid identifier %q", domain.ErrValidation, ident)
		}
	}
	if tsCol != "" && !identRe.MatchString(tsCol) {
		return nil, fmt.Errorf("%w: invalid identifier %q", domain.ErrValidation, tsCol)
	}

	return &relationalStore{src: src, dsn: dsn, table: table, content: content, tsCol: tsCol}, nil
}

func (a *relationalStore) Kind() domain.SourceKind { return domain.KindRelationalStore }
func (a *relationalStore) EmptyProbeOK() bool      { return false }

func (a *relationalStore) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", a.dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrSourceUnavailable, a.dsn, err)
	}
	return db, nil
}

func (a *relationalStore) Query(ctx context.Context, query string, opts QueryOpts) ([]domain.RawResult, error) {
	tokens := queryTokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	db, err := a.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	cols := a.content
	if a.tsCol != "" {
		cols += ", " + a.tsCol
	}
	conds := make([]string, len(tokens))
	args := make([]any, len(tokens))
	for i, tok := range tokens {
		conds[i] = a.content + " LIKE ?"
		args[i] = "%" + tok + "%"
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s LIMIT %d",
		cols, a.table, strings.Join(conds, " OR "), limit)

	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("relational store %s: %w", a.src.ID, err)
	}
	defer rows.Close()

	var results []domain.RawResult
	for rows.Next() {
		var content string
		var ts sql.NullInt64
		if a.tsCol != "" {
			err = rows.Scan(&content, &ts)
		} else {
			err = rows.Scan(&content)
		}
		if err != nil {
			return nil, fmt.Errorf("relational store %s: scan: %w", a.src.ID, err)
		}

		lower := strings.ToLower(content)
		matched := 0
		for _, tok := range tokens {
			if strings.Contains(lower, tok) {
				matched++
			}
		}

		var timestamp time.Time
		if ts.Valid && ts.Int64 > 0 {
			timestamp = time.UnixMilli(ts.Int64)
		}

		results = append(results, domain.RawResult{
			SourceID:  a.src.ID,
			Kind:      domain.ResultKnowledge,
			Content:   content,
			RawScore:  float64(matched) / float64(len(tokens)),
			Relevance: -1,
			Timestamp: timestamp,
		})
	}
	return results, rows.Err()
}

func (a *relationalStore) TestConnection(ctx context.Context) (Probe, error) {
	db, err := a.open()
	if err != nil {
		return Probe{Connected: false, Message: err.Error()}, nil
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return Probe{Connected: false, Message: fmt.Sprintf("ping failed: %v", err)}, nil
	}

	// Verify the table is queryable, not just that the connection works.
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s", a.table)
	var count int
	if err := db.QueryRowContext(ctx, stmt).Scan(&count); err != nil {
		return Probe{Connected: false, Message: fmt.Sprintf("table %s not queryable: %v", a.table, err)}, nil
	}

	sample, err := a.Query(ctx, probeQuery, QueryOpts{Limit: 1})
	if err != nil {
		return Probe{Connected: false, Message: err.Error()}, nil
	}
	return Probe{Connected: true, Message: fmt.Sprintf("table %s: %d rows", a.table, count), Sample: sample}, nil
}
