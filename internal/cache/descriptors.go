package cache

// The descriptors produced by the analysis phases.
var (
	// SourceKindData records whether a source defines a library or is a part.
	SourceKindData = NewDescriptor[SourceKind]("SOURCE_KIND")

	// LineInfoData holds line start offsets for mapping offsets to positions.
	LineInfoData = NewDescriptor[LineInfo]("LINE_INFO")

	// ParsedUnit is the syntax tree before resolution.
	ParsedUnit = NewDescriptor[CompilationUnit]("PARSED_UNIT",
		RecognizedBy(UnitEntry), Flushable(), withStage(stageParsed))

	// ParseErrors are the syntax diagnostics found while parsing.
	ParseErrors = NewErrorDescriptor("PARSE_ERRORS", RecognizedBy(UnitEntry))

	// IncludedParts lists the parts a unit includes directly. A library's
	// parts are the closure of these edges.
	IncludedParts = NewDescriptor[[]SourceID]("INCLUDED_PARTS",
		RecognizedBy(UnitEntry), withEdge(edgeParts))

	// ImportedLibraries lists the libraries a library imports.
	ImportedLibraries = NewDescriptor[[]SourceID]("IMPORTED_LIBRARIES",
		RecognizedBy(UnitEntry), withEdge(edgeImports))

	// Element describes a library as a whole.
	Element = NewDescriptor[*LibraryElement]("ELEMENT",
		RecognizedBy(UnitEntry), LibraryScoped())

	// PublicNamespace holds the names a library exports.
	PublicNamespace = NewDescriptor[Namespace]("PUBLIC_NAMESPACE",
		RecognizedBy(UnitEntry), LibraryScoped())

	// IsLaunchable reports whether a library declares an entry point.
	IsLaunchable = NewDescriptor[bool]("IS_LAUNCHABLE",
		RecognizedBy(UnitEntry), LibraryScoped())

	// ResolvedUnit is the syntax tree resolved as part of one library.
	ResolvedUnit = NewContextDescriptor[CompilationUnit]("RESOLVED_UNIT",
		Flushable(), withStage(stageResolved))

	// ResolutionErrors are the diagnostics found resolving a unit in a library.
	ResolutionErrors = NewContextErrorDescriptor("RESOLUTION_ERRORS")

	// Hints are advisory diagnostics computed from a resolved unit.
	Hints = NewContextErrorDescriptor("HINTS")
)
