package cargohold

// Configuration values that the framework may supply either literally or
// as callbacks over the attachment are modeled as small tagged variants,
// resolved by one explicit check at the point of use.

// StringValue is a string option: a literal, or a callback invoked with
// the attachment. A non-nil Func wins over the literal.
type StringValue struct {
	Literal string
	Func    func(Attachment) string
}

// String wraps a literal.
func String(s string) StringValue { return StringValue{Literal: s} }

// StringFunc wraps a callback.
func StringFunc(f func(Attachment) string) StringValue { return StringValue{Func: f} }

// Resolve returns the effective value for the given attachment.
func (v StringValue) Resolve(a Attachment) string {
	if v.Func != nil {
		return v.Func(a)
	}
	return v.Literal
}

// IsZero reports whether the value was never configured.
func (v StringValue) IsZero() bool {
	return v.Func == nil && v.Literal == ""
}

// PublicValue is the visibility flag: a global boolean, a per-style
// mapping, or unset (public). A style present in PerStyle wins; otherwise
// the global flag applies when set; otherwise objects are public.
type PublicValue struct {
	Set      bool
	Global   bool
	PerStyle map[string]bool
}

// Public wraps a global visibility flag.
func Public(b bool) PublicValue { return PublicValue{Set: true, Global: b} }

// PublicPerStyle wraps a per-style visibility mapping.
func PublicPerStyle(m map[string]bool) PublicValue { return PublicValue{PerStyle: m} }

// Resolve returns the effective visibility for the given style.
func (v PublicValue) Resolve(style string) bool {
	if v.PerStyle != nil {
		if b, ok := v.PerStyle[style]; ok {
			return b
		}
	}
	if v.Set {
		return v.Global
	}
	return true
}

// FieldsValue is the extra-upload-fields option: a literal mapping or a
// callback over the attachment.
type FieldsValue struct {
	Literal map[string]string
	Func    func(Attachment) map[string]string
}

// Fields wraps a literal mapping.
func Fields(m map[string]string) FieldsValue { return FieldsValue{Literal: m} }

// FieldsFunc wraps a callback.
func FieldsFunc(f func(Attachment) map[string]string) FieldsValue { return FieldsValue{Func: f} }

// Resolve returns the effective mapping for the given attachment.
func (v FieldsValue) Resolve(a Attachment) map[string]string {
	if v.Func != nil {
		return v.Func(a)
	}
	return v.Literal
}
