package expression

// RefKind identifies which root an expression's Reference reads from.
type RefKind string

const (
	RefInput RefKind = "input"
	RefStep  RefKind = "step"
	RefItem  RefKind = "item"
	RefIndex RefKind = "index"
)

// Accessor is one path step: either `.ident` (Key set) or `[i]`/`["key"]`
// (Index or Key set, IsIndex distinguishing the two bracket forms).
type Accessor struct {
	Key     string
	Index   int
	IsIndex bool
}

// Expr is the expression AST per §3: a Reference, a BoolOp, or a Ternary.
type Expr interface {
	exprNode()
}

// Reference reads a single path from inputs, a prior step's output, the
// current loop item, or the current loop index.
type Reference struct {
	Kind RefKind
	// StepName is set only when Kind == RefStep.
	StepName string
	Path     []Accessor
	Negated  bool
}

func (*Reference) exprNode() {}

// BoolOp is a short-circuiting `and`/`or` combination of two or more
// operands.
type BoolOp struct {
	Op       string // "and" | "or"
	Operands []Expr
}

func (*BoolOp) exprNode() {}

// Ternary is `then if cond else els`.
type Ternary struct {
	Cond Expr
	Then Expr
	Else Expr
}

func (*Ternary) exprNode() {}
