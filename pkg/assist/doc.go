// Package assist implements the auxiliary flows around generation: an
// automatic document title, an illustrative photo chosen from a keyword
// summary of the document, and a picture drawn by an image model.
//
// Title and photo degrade to the first words of the document when the
// completion service fails or answers with nothing usable.
package assist
