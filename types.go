package minic

// BaseType is the closed set of type descriptor bases named in §3.
type BaseType int

const (
	TypeVoid BaseType = iota
	TypeInt
	TypeFP
	TypeChar
	TypeString
	TypeFunction
	TypeMacro
	TypePointer
	TypeArray
	TypeType
)

func (b BaseType) String() string {
	switch b {
	case TypeVoid:
		return "void"
	case TypeInt:
		return "int"
	case TypeFP:
		return "fp"
	case TypeChar:
		return "char"
	case TypeString:
		return "string"
	case TypeFunction:
		return "function"
	case TypeMacro:
		return "macro"
	case TypePointer:
		return "pointer"
	case TypeArray:
		return "array"
	case TypeType:
		return "type"
	default:
		return "?"
	}
}

// ValueType is a type descriptor: (Base, Sub). Sub is non-nil only for
// TypePointer and TypeArray. Descriptors are interned by typeInterner so two
// requests for "pointer to int" always return the same *ValueType, matching
// §3's "type descriptors are shared, immutable once interned" invariant.
type ValueType struct {
	Base BaseType
	Sub  *ValueType
}

// IsValueType implements the ISVALUETYPE predicate of §3: only int, fp and
// string can be copied by assignment without indirection.
func (t *ValueType) IsValueType() bool {
	return t.Base == TypeInt || t.Base == TypeFP || t.Base == TypeString
}

func (t *ValueType) String() string {
	switch t.Base {
	case TypePointer:
		return t.Sub.String() + "*"
	case TypeArray:
		return t.Sub.String() + "[]"
	default:
		return t.Base.String()
	}
}

// typeInterner owns the global arena's worth of shared type descriptors: one
// instance per BaseType with no subtype, plus a cache of derived
// pointer/array types keyed by their subtype.
type typeInterner struct {
	basic   [TypeType + 1]*ValueType
	ptrOf   map[*ValueType]*ValueType
	arrOf   map[*ValueType]*ValueType
}

func newTypeInterner() *typeInterner {
	in := &typeInterner{
		ptrOf: make(map[*ValueType]*ValueType),
		arrOf: make(map[*ValueType]*ValueType),
	}
	for b := BaseType(0); b <= TypeType; b++ {
		in.basic[b] = &ValueType{Base: b}
	}
	return in
}

func (in *typeInterner) of(b BaseType) *ValueType { return in.basic[b] }

func (in *typeInterner) pointerTo(sub *ValueType) *ValueType {
	if t, ok := in.ptrOf[sub]; ok {
		return t
	}
	t := &ValueType{Base: TypePointer, Sub: sub}
	in.ptrOf[sub] = t
	return t
}

func (in *typeInterner) arrayOf(sub *ValueType) *ValueType {
	if t, ok := in.arrOf[sub]; ok {
		return t
	}
	t := &ValueType{Base: TypeArray, Sub: sub}
	in.arrOf[sub] = t
	return t
}

// keywordBase maps a parsed type keyword to its base type, folding float
// into the same representation as double per §6.
func keywordBase(k Keyword) BaseType {
	switch k {
	case KeywordVoid:
		return TypeVoid
	case KeywordInt:
		return TypeInt
	case KeywordChar:
		return TypeChar
	case KeywordFloat, KeywordDouble:
		return TypeFP
	default:
		return TypeVoid
	}
}
