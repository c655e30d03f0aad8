package duplicates

import (
	"encoding/binary"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cespare/xxhash/v2"
	"github.com/panbanda/connascence/pkg/ast"
	"github.com/panbanda/connascence/pkg/models"
	"github.com/zeebo/blake3"
)

// Tokens returns the normalized structure of a function body. Identifiers
// and literal values are replaced by placeholders; node kinds, operators and
// block nesting are kept. Nested definitions contribute a single token.
func Tokens(fn *ast.Function) []string {
	var tokens []string
	for i, stmt := range fn.Statements() {
		if i == 0 && ast.IsDocstring(stmt) {
			continue
		}
		tokens = appendTokens(tokens, stmt)
	}
	return tokens
}

func appendTokens(tokens []string, n *ast.Node) []string {
	switch {
	case n.Kind == ast.KindComment:
		return tokens
	case n.Kind == ast.KindIdentifier:
		return append(tokens, "$id")
	case n.Kind.IsLiteral():
		return append(tokens, "$lit")
	case n.Kind == ast.KindOperator:
		return append(tokens, n.Text)
	case n.Kind == ast.KindKeyword:
		return tokens
	case n.Kind == ast.KindFunction || n.Kind == ast.KindLambda || n.Kind == ast.KindClass:
		return append(tokens, n.Kind.String())
	}
	tokens = append(tokens, n.Kind.String())
	if n.Kind == ast.KindBlock {
		tokens = append(tokens, "{")
	}
	for _, c := range n.Children {
		tokens = appendTokens(tokens, c)
	}
	if n.Kind == ast.KindBlock {
		tokens = append(tokens, "}")
	}
	return tokens
}

// StatementKinds returns the kinds of every statement in the body in
// source order, including nested blocks but not nested definitions.
func StatementKinds(fn *ast.Function) []ast.Kind {
	var kinds []ast.Kind
	for i, stmt := range fn.Statements() {
		if i == 0 && ast.IsDocstring(stmt) {
			continue
		}
		ast.WalkLocal(stmt, func(n *ast.Node) bool {
			if n.Kind.IsStatement() && !wrapsAssignment(n) {
				kinds = append(kinds, n.Kind)
			}
			return true
		})
	}
	return kinds
}

// wrapsAssignment reports whether n is an expression statement or
// declaration holding assignments, which are counted instead.
func wrapsAssignment(n *ast.Node) bool {
	if n.Kind != ast.KindExprStmt {
		return false
	}
	for _, c := range n.Children {
		if c.Kind == ast.KindAssign || c.Kind == ast.KindAugAssign {
			return true
		}
	}
	return false
}

// Fingerprint hashes the normalized structure of fn. Two functions that
// differ only in names and literal values share a fingerprint.
func Fingerprint(fn *ast.Function) uint64 {
	return xxhash.Sum64String(strings.Join(Tokens(fn), " "))
}

// NewFragment fingerprints fn. ok is false when the body has fewer than
// minStatements statements.
func NewFragment(path string, fn *ast.Function, cfg Config) (Fragment, bool) {
	statements := len(StatementKinds(fn))
	if statements < max(cfg.MinStatements, 1) {
		return Fragment{}, false
	}
	tokens := Tokens(fn)
	name := fn.QualifiedName()
	if name == "" {
		name = "<anonymous>"
	}
	span := fn.Span()
	shingles := shingleSet(tokens, cfg.ShingleSize)
	return Fragment{
		Location: models.FunctionLocation{
			File:     path,
			Function: name,
			Line:     span.StartLine,
			EndLine:  span.EndLine,
		},
		Statements: statements,
		Hash:       xxhash.Sum64String(strings.Join(tokens, " ")),
		Shingles:   shingles,
		Signature:  minHash(shingles, cfg.NumHashFunctions),
	}, true
}

// shingleSet hashes every k-token window with blake3 and keeps the low
// 32 bits in a bitmap.
func shingleSet(tokens []string, k int) *roaring.Bitmap {
	set := roaring.New()
	if len(tokens) == 0 {
		return set
	}
	k = max(k, 1)
	if len(tokens) < k {
		k = len(tokens)
	}
	h := blake3.New()
	for i := 0; i <= len(tokens)-k; i++ {
		h.Reset()
		for j := i; j < i+k; j++ {
			_, _ = h.Write([]byte(tokens[j]))
			_, _ = h.Write([]byte{0})
		}
		sum := h.Sum(nil)
		set.Add(binary.LittleEndian.Uint32(sum[:4]))
	}
	return set
}

// minHash computes a MinHash signature over the shingle set.
func minHash(shingles *roaring.Bitmap, numHashes int) *MinHashSignature {
	sig := &MinHashSignature{Values: make([]uint64, numHashes)}
	for i := range sig.Values {
		sig.Values[i] = ^uint64(0)
	}
	it := shingles.Iterator()
	for it.HasNext() {
		shingle := uint64(it.Next())
		for i := range sig.Values {
			if h := hashUint64WithSeed(shingle, uint64(i)); h < sig.Values[i] {
				sig.Values[i] = h
			}
		}
	}
	return sig
}

// hashUint64WithSeed mixes a value and a seed murmur-style.
func hashUint64WithSeed(value uint64, seed uint64) uint64 {
	h := value ^ (seed * 0x9e3779b97f4a7c15)
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h
}
