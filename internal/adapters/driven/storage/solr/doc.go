// Package solr provides a driven.Index over a Solr core.
//
// Compiled queries are sent verbatim to the select handler in the standard
// query parser syntax. Before the first write the index installs, through
// the Schema API, the dynamic fields the encoded field names need:
// str.* (keyword tokenizer, lower-cased), txt.* (whitespace tokenizer,
// lower-cased) and string fields for ref.*, int.*, dbl.*, dat.*, bool.*
// and the yard.* settings. Schemaless field guessing would type these
// fields differently, so a core whose schema is not managed must carry the
// same definitions and be opened with Config.SkipSchema.
// Yard settings live in a reserved document that searches filter out.
package solr
