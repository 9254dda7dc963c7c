// Package codec defines the converter contract the gateway drives and ships
// the production adapter for it.
//
// The Codec interface mirrors the Forms API: parse a module from a binary or
// XML file into a Document, then either serialize it as XML to any writer or
// save it as a compiled module to a named file. Connect builds the Session
// adapter, which shells out to the Oracle Forms frmf2xml and frmxml2f
// utilities inside private work directories, with the Forms environment
// (ORACLE_HOME, FORMS_PATH, DISPLAY, LD_LIBRARY_PATH) assembled once.
// Tool processes die with their request context and with the gateway.
//
// Errors carry services markers: tool rejections are ErrConversion, missing
// tools and I/O problems are ErrResource.
package codec
