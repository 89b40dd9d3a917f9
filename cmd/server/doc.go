// Command server runs the runbox execution dispatcher.
//
// Configuration is read from config.yaml in the working directory or a
// config/ subdirectory; every setting has a default, so the server
// starts without a config file. The sandbox backend defaults to Docker
// and requires a reachable container engine on the host.
package main
