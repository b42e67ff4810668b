package resolver

import (
	"context"
	"fmt"

	"github.com/graphql-go/graphql"

	"pg-graphql/internal/dbexec"
	"pg-graphql/internal/logging"
	"pg-graphql/internal/selection"
)

// resolveQuery resolves a root row, connection or function field with one
// compiled statement.
func (r *Resolver) resolveQuery(p graphql.ResolveParams) (interface{}, error) {
	node, err := r.parser.Parse(p)
	if err != nil {
		r.compileFailed(p.Context, "parse", err)
		return nil, err
	}

	ctx, span := startResolverSpan(p.Context, "graphql.query."+node.Tag.String(), node)
	doc, err := r.runQuery(ctx, node)
	finishResolverSpan(span, err)
	if err != nil {
		return nil, err
	}
	r.storeResult(p.Context, node, doc)
	return doc, nil
}

func (r *Resolver) runQuery(ctx context.Context, node *selection.Node) (interface{}, error) {
	query, err := r.compiler.Compile(node)
	if err != nil {
		r.compileFailed(ctx, node.Tag.String(), err)
		return nil, err
	}
	logging.FromContext(ctx).Debug("compiled root selection",
		"field", node.Name,
		"tag", node.Tag.String(),
		"args", len(query.Args),
	)

	var doc interface{}
	err = r.withSession(ctx, func(s *dbexec.Session) error {
		var qerr error
		doc, qerr = s.QueryJSON(ctx, node.Tag.String(), query.SQL, query.Args...)
		return qerr
	})
	return doc, err
}

// resolveMutation runs the mutation statement, then reselects the payload's
// row selection for the returned identifier in the same transaction.
func (r *Resolver) resolveMutation(p graphql.ResolveParams) (interface{}, error) {
	node, err := r.parser.Parse(p)
	if err != nil {
		r.compileFailed(p.Context, "parse", err)
		return nil, err
	}

	ctx, span := startResolverSpan(p.Context, "graphql.mutation."+node.Tag.String(), node)
	doc, err := r.runMutation(ctx, node)
	finishResolverSpan(span, err)
	if err != nil {
		return nil, err
	}
	r.storeResult(p.Context, node, doc)
	return doc, nil
}

func (r *Resolver) runMutation(ctx context.Context, node *selection.Node) (map[string]interface{}, error) {
	plan, err := r.compiler.CompileMutation(node)
	if err != nil {
		r.compileFailed(ctx, node.Tag.String(), err)
		return nil, err
	}

	var doc map[string]interface{}
	err = r.withSession(ctx, func(s *dbexec.Session) error {
		encodedID, found, err := s.QueryString(ctx, node.Tag.String(), plan.Statement.SQL, plan.Statement.Args...)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("no %s row matched the given nodeId", plan.Table.Name)
		}

		var rows map[string]interface{}
		reselect, ok, err := plan.Reselect(encodedID)
		if err != nil {
			return err
		}
		if ok {
			result, err := s.QueryJSON(ctx, "reselect", reselect.SQL, reselect.Args...)
			if err != nil {
				return err
			}
			rows, _ = result.(map[string]interface{})
		}
		doc = plan.Payload(encodedID, rows)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// withSession runs fn in the request's session. Without one, fn gets a
// session of its own that is finalized when fn returns.
func (r *Resolver) withSession(ctx context.Context, fn func(*dbexec.Session) error) error {
	if s := dbexec.SessionFromContext(ctx); s != nil {
		err := fn(s)
		if err != nil {
			s.MarkError()
		}
		return err
	}

	var opts []dbexec.SessionOption
	if claims, ok := dbexec.ClaimsFromContext(ctx); ok {
		opts = append(opts, dbexec.WithSessionClaims(claims, r.claimsCfg))
	}
	if r.statementObserver != nil {
		opts = append(opts, dbexec.WithStatementObserver(r.statementObserver))
	}
	s := dbexec.NewSession(r.executor, opts...)
	err := fn(s)
	if err != nil {
		s.MarkError()
	}
	if ferr := s.Finalize(); ferr != nil && err == nil {
		err = ferr
	}
	return err
}

// markRequestFailed rolls the request's transaction back even though no
// statement ran, so earlier mutations of the same request do not survive.
func (r *Resolver) markRequestFailed(ctx context.Context) {
	if s := dbexec.SessionFromContext(ctx); s != nil {
		s.MarkError()
	}
}

func (r *Resolver) storeResult(ctx context.Context, node *selection.Node, doc interface{}) {
	if cache := ResultCacheFromContext(ctx); cache != nil {
		cache.Store(node.Alias, doc)
	}
}

func (r *Resolver) compileFailed(ctx context.Context, kind string, err error) {
	logging.FromContext(ctx).Warn("failed to compile selection",
		"kind", kind,
		"error", err,
	)
	if r.compileObserver != nil {
		r.compileObserver(ctx, kind, err)
	}
	r.markRequestFailed(ctx)
}
