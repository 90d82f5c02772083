// Package demo builds the sample world used by both the serve-demo and
// world-dump CLI subcommands: a small schema with three controller
// properties (one of them private), two world properties, a server-authored
// "Tank" and a client-authored "Flag" entity type, and one RPC in each
// direction.
package demo

import (
	"github.com/JeffM2501/EntityNetwork/descriptor"
	"github.com/JeffM2501/EntityNetwork/world"
)

// BuildWorld registers the demo schema into a fresh world.World and returns
// it. A demo run registers it on the server side only; the client starts
// from an empty world and learns the definitions over the wire during
// admission (AddPeer/Dispatch).
func BuildWorld() *world.World {
	w := world.New()

	w.RegisterControllerProperty("Name", descriptor.String, descriptor.BidirectionalSync, false)
	w.RegisterControllerProperty("Score", descriptor.Int32, descriptor.ServerPushSync, false)
	w.RegisterControllerProperty("Secret", descriptor.Int32, descriptor.ServerPushSync, true)

	w.RegisterWorldProperty("Width", descriptor.Int32)
	w.RegisterWorldProperty("Height", descriptor.Int32)

	tank := descriptor.Entity{Name: "Tank", CreateScope: descriptor.ServerSync}
	tank.AddProperty(descriptor.Property{Name: "Pos", Type: descriptor.Vector3F, Scope: descriptor.ServerPushSync})
	tank.AddProperty(descriptor.Property{Name: "Health", Type: descriptor.Int32, Scope: descriptor.ServerPushSync})
	w.RegisterEntityType(tank)

	flag := descriptor.Entity{Name: "Flag", CreateScope: descriptor.ClientSync}
	flag.AddProperty(descriptor.Property{Name: "Pos", Type: descriptor.Vector3F, Scope: descriptor.BidirectionalSync})
	w.RegisterEntityType(flag)

	w.RegisterRPC("Spawn", descriptor.ClientToServer, []descriptor.Property{
		{Name: "TypeName", Type: descriptor.String},
	})
	w.RegisterRPC("Broadcast", descriptor.ServerToAllClients, []descriptor.Property{
		{Name: "Message", Type: descriptor.String},
	})

	return w
}
