// Package codec maps the logical entity model onto physical index fields.
//
// It has three parts:
//
//   - Field names: EncodeFieldName and DecodeFieldName translate a
//     (field URI, data type, language) triple to a single index field name
//     and back. The mapping is a bijection over the names it produces.
//   - Values: EncodeValue turns an index value into index or query tokens
//     (escaping, case folding, tokenization), and ToIndexValue and
//     FromIndexValue convert between semantic values and their canonical,
//     sortable lexical forms.
//   - Documents: ToDocument and FromDocument convert whole representations.
//
// # Thread Safety
//
// Every function is pure and safe for concurrent use.
package codec
