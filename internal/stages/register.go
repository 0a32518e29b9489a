// Package stages blank-imports every concrete stage package so their
// init() functions register with the stage registry. Import this package
// (for side effects only) wherever the full stage set must be available,
// such as cmd/stacpipe's root command.
package stages

import (
	_ "github.com/stacpipe/stacpipe/internal/stages/extension"
	_ "github.com/stacpipe/stacpipe/internal/stages/ingest"
	_ "github.com/stacpipe/stacpipe/internal/stages/output"
	_ "github.com/stacpipe/stacpipe/internal/stages/seed"
	_ "github.com/stacpipe/stacpipe/internal/stages/transform"
	_ "github.com/stacpipe/stacpipe/internal/stages/update"
	_ "github.com/stacpipe/stacpipe/internal/stages/validate"
)
