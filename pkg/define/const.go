package define

const (
	// AuthorityPrefix is the namespace this tool owns inside a remote host
	// identifier. Identifiers carrying any other prefix are foreign and
	// passed through untouched.
	AuthorityPrefix = "coder-vscode"

	// AuthoritySchemePrefix is the transport scheme an identifier may be
	// wrapped in when handed over by the host IDE.
	AuthoritySchemePrefix = "ssh-remote+"

	// SSHStartToken and SSHEndToken delimit the managed block inside the
	// user's SSH config file. A non-empty deployment label is embedded
	// between the token and the trailing dashes. The bare form (no label)
	// is the legacy marker and is only ever matched when operating on the
	// empty label.
	SSHStartToken = "# --- START CODER VSCODE"
	SSHEndToken   = "# --- END CODER VSCODE"
	SSHMarkerTail = "---"

	// DefaultSSHConfigPath is used when the host IDE supplies no explicit
	// SSH config location.
	DefaultSSHConfigPath = "~/.ssh/config"

	// MinimumConnectTimeout is the floor for the host IDE's remote SSH
	// connect timeout, in seconds. Workspace builds routinely outlive the
	// stock timeout.
	MinimumConnectTimeout = 1800

	SessionTokenFile = "session_token"
	URLFile          = "url"
	NetworkInfoDir   = "net"
	ProxyLogDir      = "logs"
)

// CLI flag names.
const (
	FlagVerbose       = "verbose"
	FlagSSHConfigFile = "ssh-config-file"
	FlagSettingsFile  = "settings-file"
	FlagGlobalConfig  = "global-config"
	FlagBinary        = "binary"
	FlagSSHOption     = "ssh-option"
	FlagToken         = "token"
	FlagLabel         = "label"
)
