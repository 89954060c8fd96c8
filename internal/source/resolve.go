package source

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/nishad/biobank/internal/errors"
	"github.com/nishad/biobank/internal/table"
)

// Options configures Resolve.
type Options struct {
	Sheets Sheets
	S3     S3Config

	// S3Client overrides the client built from S3.
	S3Client *s3.Client

	Logger zerolog.Logger
}

// Router dispatches each input to the source that holds it.
type Router struct {
	routes map[string]Source
	logger zerolog.Logger
}

// Resolve builds a Router over input references: refs starting with s3://
// are read from object storage and everything else from the local file
// system. Empty references are left unrouted and fail at load time.
func Resolve(ctx context.Context, refs map[string]string, opts Options) (*Router, error) {
	const op errors.Op = "source.resolve"

	if opts.Sheets == nil {
		opts.Sheets = DefaultSheets()
	}
	files := make(map[string]string)
	objects := make(map[string]string)
	for id, ref := range refs {
		ref = strings.TrimSpace(ref)
		switch {
		case ref == "":
		case IsS3(ref):
			if _, _, err := ParseS3URI(ref); err != nil {
				return nil, errors.E(op, errors.KindValidation, err)
			}
			objects[id] = ref
		default:
			files[id] = ref
		}
	}

	r := &Router{routes: make(map[string]Source), logger: opts.Logger}
	if len(files) > 0 {
		fs := NewFileSource(files, opts.Sheets)
		for id := range files {
			r.routes[id] = fs
		}
	}
	if len(objects) > 0 {
		client := opts.S3Client
		if client == nil {
			var err error
			if client, err = NewS3Client(ctx, opts.S3); err != nil {
				return nil, errors.Wrap(op, err)
			}
		}
		ss := NewS3Source(client, objects, opts.Sheets)
		for id := range objects {
			r.routes[id] = ss
		}
	}
	return r, nil
}

// Route registers src for an input, replacing any previous route.
func (r *Router) Route(id string, src Source) {
	r.routes[id] = src
}

// Load implements Source.
func (r *Router) Load(ctx context.Context, id string) (*table.Table, error) {
	src, ok := r.routes[id]
	if !ok {
		return nil, errors.SourceUnavailable("source.route", id)
	}
	t, err := src.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	r.logger.Debug().
		Str("input", id).
		Int("rows", t.Len()).
		Int("columns", len(t.Header)).
		Msg("input loaded")
	return t, nil
}
