package migrate

import (
	"fmt"
	"io/fs"
	"path"
	"strings"
	"text/template"

	"github.com/pressly/goose/v3"
	"go.uber.org/multierr"
)

// Versions are UTC timestamps, YYYYMMDDHHMMSS.
const minTimestampVersion = 10000000000000

// Lint reports every problem in the SQL migrations of fsys: versions that
// are not timestamps or are reused, and files missing an Up or Down section.
func Lint(fsys fs.FS) error {
	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return err
	}
	var problems error
	owner := map[int64]string{}
	for _, name := range files {
		version, err := goose.NumericComponent(name)
		if err != nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if version < minTimestampVersion {
			problems = multierr.Append(problems, fmt.Errorf("%s: version %d is not a timestamp", name, version))
		}
		if prev, dup := owner[version]; dup {
			problems = multierr.Append(problems, fmt.Errorf("%s: version %d already used by %s", name, version, prev))
		}
		owner[version] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			problems = multierr.Append(problems, err)
			continue
		}
		for _, section := range []string{"-- +goose Up", "-- +goose Down"} {
			if !strings.Contains(string(body), section) {
				problems = multierr.Append(problems, fmt.Errorf("%s: missing %q", path.Base(name), section))
			}
		}
	}
	return problems
}

var scaffold = template.Must(template.New("migration").Parse(`-- +goose Up
-- +goose StatementBegin
-- {{.CamelName}}
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- undo {{.CamelName}}
-- +goose StatementEnd
`))

// Scaffold writes an empty timestamped SQL migration into dir.
func Scaffold(dir, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("migration name required")
	}
	return goose.CreateWithTemplate(nil, dir, scaffold, name, "sql")
}
