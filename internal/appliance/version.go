package appliance

// Version is the protocol version announced during the capability
// handshake. Overridden at link time for releases.
var Version = "0.1.0"
