package links

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/jaevor/go-nanoid"
)

// CodeAlphabet is the character set of generated short codes.
const CodeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

const (
	// DefaultCodeLength is the length of a generated short code.
	DefaultCodeLength = 6
	// FallbackCodeLength is used once suffix disambiguation gives up.
	FallbackCodeLength = 8
	// maxSuffixAttempts bounds the collision loop.
	maxSuffixAttempts = 1000
)

var codePattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// ValidCode reports whether code is a non-empty alphanumeric token.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// CodeGenerator generates random short codes.
type CodeGenerator func() string

// NewCodeGenerator returns a nanoid generator over CodeAlphabet.
func NewCodeGenerator(length int) (CodeGenerator, error) {
	gen, err := nanoid.CustomASCII(CodeAlphabet, length)
	if err != nil {
		return nil, fmt.Errorf("create code generator: %w", err)
	}

	return CodeGenerator(gen), nil
}

// CodeAllocator picks a short code that no other link uses.
type CodeAllocator struct {
	store    Repository
	generate CodeGenerator
	fallback CodeGenerator
}

// NewCodeAllocator creates an allocator. generate produces regular codes, fallback the
// longer codes used when a candidate cannot be disambiguated.
func NewCodeAllocator(store Repository, generate, fallback CodeGenerator) *CodeAllocator {
	return &CodeAllocator{
		store:    store,
		generate: generate,
		fallback: fallback,
	}
}

// Allocate returns requested when it is valid and free. An empty or invalid request gets a
// generated code. A taken candidate is suffixed with 1, 2, ... until free; after
// maxSuffixAttempts a fallback code is returned unchecked.
func (a *CodeAllocator) Allocate(ctx context.Context, requested string, excludeID int64) (Code, error) {
	candidate := requested
	if !ValidCode(candidate) {
		candidate = a.generate()
	}

	base := candidate

	for counter := 1; ; counter++ {
		exists, err := a.store.CodeExists(ctx, Code(candidate), excludeID)
		if err != nil {
			return "", fmt.Errorf("check short code: %w", err)
		}

		if !exists {
			return Code(candidate), nil
		}

		if counter > maxSuffixAttempts {
			return Code(a.fallback()), nil
		}

		candidate = base + strconv.Itoa(counter)
	}
}
