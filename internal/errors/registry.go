package errors

// Template defines a registered error type.
type Template struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

const docBase = "https://github.com/vango-go/hashstate/blob/main/docs/errors.md#"

// registry maps error codes to their templates.
var registry = map[string]Template{
	// ============================================
	// Config Errors (H100-H199)
	// ============================================

	"H101": {
		Category: CategoryConfig,
		Message:  "Config file not found",
		Detail:   "No hashstate.json, hashstate.toml or hashstate.yaml was found in the working directory or its parents.",
		DocURL:   docBase + "h101",
	},
	"H102": {
		Category: CategoryConfig,
		Message:  "Invalid config file",
		Detail:   "The config file could not be parsed. Check the syntax for its format.",
		DocURL:   docBase + "h102",
	},
	"H103": {
		Category: CategoryConfig,
		Message:  "Unsupported config format",
		Detail:   "Config files must end in .json, .toml, .yaml or .yml.",
		DocURL:   docBase + "h103",
	},
	"H104": {
		Category: CategoryConfig,
		Message:  "Invalid config value",
		Detail:   "A config value is out of range or refers to something that does not exist.",
		DocURL:   docBase + "h104",
	},
	"H105": {
		Category: CategoryConfig,
		Message:  "Duplicate binding key",
		Detail:   "Two bindings use the same fragment key. Each key holds exactly one value.",
		DocURL:   docBase + "h105",
	},

	// ============================================
	// Transport Errors (H200-H299)
	// ============================================

	"H201": {
		Category: CategoryTransport,
		Message:  "Server failed to start",
		Detail:   "The HTTP listener could not be opened. The port may already be in use.",
		DocURL:   docBase + "h201",
	},
	"H202": {
		Category: CategoryTransport,
		Message:  "Mirror backend unavailable",
		Detail:   "The configured mirror backend could not be reached.",
		DocURL:   docBase + "h202",
	},

	// ============================================
	// Codec Errors (H300-H399)
	// ============================================

	"H301": {
		Category: CategoryCodec,
		Message:  "Unknown codec",
		Detail:   "Supported codecs are string, scalar, json and base64json.",
		DocURL:   docBase + "h301",
	},
	"H302": {
		Category: CategoryCodec,
		Message:  "Value could not be decoded",
		Detail:   "The encoded value is not valid for the selected codec.",
		DocURL:   docBase + "h302",
	},
	"H303": {
		Category: CategoryCodec,
		Message:  "Value could not be encoded",
		Detail:   "The value is not valid input for the selected codec.",
		DocURL:   docBase + "h303",
	},

	// ============================================
	// OAuth Errors (H400-H499)
	// ============================================

	"H401": {
		Category: CategoryOAuth,
		Message:  "Unknown OAuth provider",
		Detail:   "Supported providers are google and apple.",
		DocURL:   docBase + "h401",
	},
	"H402": {
		Category: CategoryOAuth,
		Message:  "Missing client ID",
		Detail:   "An OAuth client ID is required to build an authorization URL.",
		DocURL:   docBase + "h402",
	},
	"H403": {
		Category: CategoryOAuth,
		Message:  "Nonce generation failed",
		Detail:   "The system random source could not be read.",
		DocURL:   docBase + "h403",
	},

	// ============================================
	// CLI Errors (H500-H599)
	// ============================================

	"H501": {
		Category: CategoryCLI,
		Message:  "Missing argument",
		Detail:   "The command needs an argument that was not given.",
		DocURL:   docBase + "h501",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}
