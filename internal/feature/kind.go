package feature

import "fmt"

// Kind tags one top-level statement of a function body.
type Kind string

// Statement kinds shared by every language.
const (
	KindExpr      Kind = "Expr"
	KindReturn    Kind = "Return"
	KindAssign    Kind = "Assign"
	KindAugAssign Kind = "AugAssign"
	KindIf        Kind = "If"
	KindFor       Kind = "For"
	KindBreak     Kind = "Break"
	KindContinue  Kind = "Continue"
)

// Python statement kinds.
const (
	KindAnnAssign        Kind = "AnnAssign"
	KindAsyncFor         Kind = "AsyncFor"
	KindWhile            Kind = "While"
	KindTry              Kind = "Try"
	KindWith             Kind = "With"
	KindAsyncWith        Kind = "AsyncWith"
	KindFunctionDef      Kind = "FunctionDef"
	KindAsyncFunctionDef Kind = "AsyncFunctionDef"
	KindClassDef         Kind = "ClassDef"
	KindRaise            Kind = "Raise"
	KindAssert           Kind = "Assert"
	KindDelete           Kind = "Delete"
	KindImport           Kind = "Import"
	KindImportFrom       Kind = "ImportFrom"
	KindGlobal           Kind = "Global"
	KindNonlocal         Kind = "Nonlocal"
	KindPass             Kind = "Pass"
	KindMatch            Kind = "Match"
	KindTypeAlias        Kind = "TypeAlias"
)

// Go statement kinds.
const (
	KindDecl        Kind = "Decl"
	KindIncDec      Kind = "IncDec"
	KindSend        Kind = "Send"
	KindGo          Kind = "Go"
	KindDefer       Kind = "Defer"
	KindSwitch      Kind = "Switch"
	KindSelect      Kind = "Select"
	KindLabeled     Kind = "Labeled"
	KindGoto        Kind = "Goto"
	KindFallthrough Kind = "Fallthrough"
	KindBlock       Kind = "Block"
	KindEmpty       Kind = "Empty"
)

var knownKinds = map[Kind]bool{
	KindExpr: true, KindReturn: true, KindAssign: true, KindAugAssign: true,
	KindIf: true, KindFor: true, KindBreak: true, KindContinue: true,

	KindAnnAssign: true, KindAsyncFor: true, KindWhile: true, KindTry: true,
	KindWith: true, KindAsyncWith: true, KindFunctionDef: true,
	KindAsyncFunctionDef: true, KindClassDef: true, KindRaise: true,
	KindAssert: true, KindDelete: true, KindImport: true, KindImportFrom: true,
	KindGlobal: true, KindNonlocal: true, KindPass: true, KindMatch: true,
	KindTypeAlias: true,

	KindDecl: true, KindIncDec: true, KindSend: true, KindGo: true,
	KindDefer: true, KindSwitch: true, KindSelect: true, KindLabeled: true,
	KindGoto: true, KindFallthrough: true, KindBlock: true, KindEmpty: true,
}

// Valid reports whether k is one of the known statement kinds.
func (k Kind) Valid() bool {
	return knownKinds[k]
}

// UnmarshalText rejects tags outside the known set.
func (k *Kind) UnmarshalText(text []byte) error {
	v := Kind(text)
	if !v.Valid() {
		return fmt.Errorf("unknown statement kind %q", text)
	}
	*k = v
	return nil
}
