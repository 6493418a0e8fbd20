package connection

import _ "embed"

// rootCAPEM is the pinned root certificate authenticating ServerName. This
// reference deployment embeds a self-signed placeholder CA; a production
// build substitutes the relay operator's real certificate at this path
// without any other code change.
//
//go:embed certs/root_ca.pem
var rootCAPEM []byte
