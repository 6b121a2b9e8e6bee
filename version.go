package toxiproxy

// Version of the client, set at build time for releases.
var Version = "1.0.0"
