// internal/corscheck/corscheck.go
// internal/corscheck/corscheck.go
package corscheck

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/pflag"

	"github.com/dalemusser/corsgate/config"
	"github.com/dalemusser/corsgate/engine"
	"github.com/dalemusser/corsgate/logging"
	"github.com/dalemusser/corsgate/policy"
)

// Run is the corscheck entrypoint.
//
// binName is the CLI name to show in help/usage text. args are the
// command-line arguments excluding the binary name (i.e. os.Args[1:]).
//
// It returns a process exit code; callers should os.Exit(Run(...)).
func Run(binName string, args []string) int {
	if len(args) < 1 {
		usage(binName)
		return 1
	}

	switch args[0] {
	case "validate":
		return validateCmd()
	case "eval":
		return evalCmd()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %q\n\n", args[0])
		usage(binName)
		return 1
	}
}

func usage(binName string) {
	fmt.Printf("corsgate policy checker (%s)\n", binName)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s validate                 load configuration and report errors\n", binName)
	fmt.Printf("  %s eval [flags]             evaluate a hypothetical request\n", binName)
	fmt.Println()
	fmt.Println("Eval flags (plus all configuration flags):")
	fmt.Println("  --route <pattern>             route to resolve policy for (default \"/\")")
	fmt.Println("  --origin <origin>             request Origin header value")
	fmt.Println("  --request-method <method>     preflight Access-Control-Request-Method")
	fmt.Println("  --request-headers <list>      preflight Access-Control-Request-Headers")
	fmt.Println("  --websocket                   evaluate the WebSocket origin gate")
	fmt.Println()
	fmt.Println("Example:")
	fmt.Printf("  %s eval --enable_cors --allowed_origins '[\"https://app.example.com\"]' \\\n", binName)
	fmt.Println("      --origin https://app.example.com --request-method POST")
	fmt.Println()
	fmt.Println("Exit code is 0 when the request would be admitted, 1 otherwise.")
}

// validateCmd loads the configuration the same way a server would and
// reports the result. Config errors (including the credentialed-wildcard
// contradiction) come back from config.Load.
func validateCmd() int {
	logger := logging.BootstrapLogger()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return 1
	}
	if _, err := cfg.Policy(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid policy:", err)
		return 1
	}
	if _, err := cfg.Registry(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid route overrides:", err)
		return 1
	}
	fmt.Println("configuration ok")
	fmt.Println(cfg.Dump())
	return 0
}

// evalCmd resolves the effective policy for a route and prints the decision
// the engine would make for the described request.
func evalCmd() int {
	route := pflag.String("route", "/", "Route pattern to resolve policy for")
	origin := pflag.String("origin", "", "Request Origin header value")
	reqMethod := pflag.String("request-method", "", "Preflight Access-Control-Request-Method")
	reqHeaders := pflag.String("request-headers", "", "Preflight Access-Control-Request-Headers (comma-separated)")
	ws := pflag.Bool("websocket", false, "Evaluate the WebSocket origin gate")

	logger := logging.BootstrapLogger()
	defer func() { _ = logger.Sync() }()

	// config.Load parses the shared flag set, picking up the flags above
	// alongside the configuration flags.
	cfg, err := config.Load(logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return 1
	}

	base, err := cfg.Policy()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid policy:", err)
		return 1
	}
	reg, err := cfg.Registry()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid route overrides:", err)
		return 1
	}

	frags, exempt := reg.Lookup(*route)
	if exempt {
		fmt.Printf("route %s is exempt from CORS processing\n", *route)
		return 0
	}

	pol, err := policy.Resolve(base, frags...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid effective policy:", err)
		return 1
	}

	if *ws {
		if engine.Websocket(pol, *origin) {
			fmt.Println("websocket upgrade: admitted")
			return 0
		}
		fmt.Println("websocket upgrade: rejected (origin not allowed)")
		return 1
	}

	var d engine.Decision
	if *reqMethod != "" {
		d = engine.Preflight(pol, *origin, *reqMethod, engine.ParseRequestHeaders(*reqHeaders))
	} else {
		d = engine.Simple(pol, *origin)
	}

	printHeaders(d)
	if d.Rejected {
		fmt.Println("decision: rejected (" + string(d.Reason) + ")")
		return 1
	}
	fmt.Println("decision: allowed")
	return 0
}

func printHeaders(d engine.Decision) {
	names := make([]string, 0, len(d.Header))
	for name := range d.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range d.Header[name] {
			fmt.Printf("%s: %s\n", name, v)
		}
	}
}
