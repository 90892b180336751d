// Package websockets carries the bridge over WebSocket connections. Each text
// frame holds exactly one unit of bridge text: an encoded envelope travelling
// from the content side (client) to the host (server), or an injected script
// travelling from the host back to the content side.
package websockets
