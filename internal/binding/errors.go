package binding

import "fmt"

// ProvidersDoNotMatchError fires when the provider name in
// configuration, the fetched provider descriptor, and the map header
// disagree (spec.md §4.H, §7).
type ProvidersDoNotMatchError struct {
	Configured, Descriptor, MapHeader string
}

func (e *ProvidersDoNotMatchError) Error() string {
	return fmt.Sprintf("binding: providers do not match: configured=%q descriptor=%q map=%q",
		e.Configured, e.Descriptor, e.MapHeader)
}

// VariantMismatchError fires when a configured map variant/revision
// disagrees with the map header's.
type VariantMismatchError struct {
	Configured, MapHeader string
}

func (e *VariantMismatchError) Error() string {
	return fmt.Sprintf("binding: variant mismatch: configured=%q map=%q", e.Configured, e.MapHeader)
}

// ProfileIdsDoNotMatchError fires when a file-based map's profile id
// disagrees with the configured profile id.
type ProfileIdsDoNotMatchError struct {
	Configured, MapHeader string
}

func (e *ProfileIdsDoNotMatchError) Error() string {
	return fmt.Sprintf("binding: profile ids do not match: configured=%q map=%q", e.Configured, e.MapHeader)
}

// ReferencedFileNotFoundError wraps a missing local file reference.
type ReferencedFileNotFoundError struct {
	Path string
	Err  error
}

func (e *ReferencedFileNotFoundError) Error() string {
	return fmt.Sprintf("binding: referenced file not found: %s: %v", e.Path, e.Err)
}

func (e *ReferencedFileNotFoundError) Unwrap() error { return e.Err }

// UnsupportedFileExtensionError fires when a configured file path's
// extension is neither the compiled-artifact nor source extension.
type UnsupportedFileExtensionError struct {
	Path string
}

func (e *UnsupportedFileExtensionError) Error() string {
	return fmt.Sprintf("binding: unsupported file extension: %s", e.Path)
}

// SourceFileExtensionFoundError fires when a map source file is
// referenced directly without a compiled sibling artifact.
type SourceFileExtensionFoundError struct {
	Path, ExpectedBuildPath string
}

func (e *SourceFileExtensionFoundError) Error() string {
	return fmt.Sprintf("binding: map source %s referenced without compiled artifact; run the compiler to produce %s",
		e.Path, e.ExpectedBuildPath)
}

// UnableToResolveProfileError fires when no version is configured and
// no settings exist to resolve one.
type UnableToResolveProfileError struct {
	ProfileID string
}

func (e *UnableToResolveProfileError) Error() string {
	return fmt.Sprintf("binding: unable to resolve profile %s: no version configured", e.ProfileID)
}

// InvalidMapAstResponseError fires when a registry bind response's
// embedded map AST fails to parse, after the map-source fallback also
// fails.
type InvalidMapAstResponseError struct {
	Err error
}

func (e *InvalidMapAstResponseError) Error() string {
	return fmt.Sprintf("binding: invalid map ast response: %v", e.Err)
}

func (e *InvalidMapAstResponseError) Unwrap() error { return e.Err }
