package chunker

import (
	"crypto/md5" //nolint:gosec // id suffix only, not a security boundary
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ChunkID derives the stable identifier of the index-th chunk of a page:
// {document}_p{page}_c{index}_{8 hex digest chars}.
func ChunkID(documentName string, pageNumber, index int) string {
	base := fmt.Sprintf("%s_page%d_chunk%d", documentName, pageNumber, index)
	sum := md5.Sum([]byte(base)) //nolint:gosec
	return fmt.Sprintf("%s_p%d_c%d_%s", documentName, pageNumber, index, hex.EncodeToString(sum[:])[:8])
}

// DocumentIDPrefix is the prefix shared by every chunk id of a document.
func DocumentIDPrefix(documentName string) string {
	return documentName + "_p"
}

var idSuffixRe = regexp.MustCompile(`^(\d+)_c(\d+)_[0-9a-f]{8}$`)

// OwnedBy reports whether chunkID was generated for documentName.
// Unlike a bare prefix check it re-derives the id, so "a.txt" does not claim
// chunks of a document literally named "a.txt_p1.txt".
func OwnedBy(chunkID, documentName string) bool {
	rest, ok := strings.CutPrefix(chunkID, DocumentIDPrefix(documentName))
	if !ok {
		return false
	}
	m := idSuffixRe.FindStringSubmatch(rest)
	if m == nil {
		return false
	}
	page, err := strconv.Atoi(m[1])
	if err != nil {
		return false
	}
	index, err := strconv.Atoi(m[2])
	if err != nil {
		return false
	}
	return ChunkID(documentName, page, index) == chunkID
}
