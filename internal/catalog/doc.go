// Package catalog parses catalog documents into catalog files: the header,
// catalog-level parameter declarations and the named entries grouped by
// entity kind. Structure is checked against the embedded JSON schema in
// schema/catalog.schema.json; entry payloads are checked against the
// entity-kind shapes of the schema package.
package catalog
