package settings

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/puzpuzpuz/xsync/v3"
)

// programCache memoizes compiled expr programs by source text, shared
// across every filter/formula/graph_solver node in the process.
// xsync.MapOf gives lock-free concurrent reads across flows running at
// once.
var programCache = xsync.NewMapOf[string, *vm.Program]()

// compileCached compiles src against env's shape, caching by src text.
func compileCached(src string, env any) (*vm.Program, error) {
	if prog, ok := programCache.Load(src); ok {
		return prog, nil
	}
	prog, err := expr.Compile(src, expr.Env(env))
	if err != nil {
		return nil, err
	}
	programCache.Store(src, prog)
	return prog, nil
}

// runBoolExpr compiles (or reuses) src and runs it against env, expecting a
// bool result — used by filter predicates and graph_solver convergence
// conditions.
func runBoolExpr(src string, env map[string]any) (bool, error) {
	prog, err := compileCached(src, env)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(prog, env)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, errNotBool
	}
	return b, nil
}

// runValueExpr compiles (or reuses) src and runs it against env, returning
// whatever value it produces — used by formula columns.
func runValueExpr(src string, env map[string]any) (any, error) {
	prog, err := compileCached(src, env)
	if err != nil {
		return nil, err
	}
	return expr.Run(prog, env)
}

var errNotBool = exprTypeError{"expression did not evaluate to a boolean"}

type exprTypeError struct{ msg string }

func (e exprTypeError) Error() string { return e.msg }
