// Package lifecycle implements the two startup phases of the gateway.
// Install opens the current cache generation and populates it with the
// configured core assets; activate deletes every other generation so that
// exactly one store survives. Both run to completion before the HTTP
// listener starts, so a new generation controls all traffic from the first
// request it sees.
package lifecycle
