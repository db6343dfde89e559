package methods

import (
	"github.com/nextlevelbuilder/numcheck/internal/gateway"
)

// RegisterAll wires every method group into the server's router.
func RegisterAll(server *gateway.Server) {
	router := server.Router()
	NewSessionMethods(server.Sessions()).Register(router)
	NewNumberMethods(server.Engine()).Register(router)
	NewCacheMethods(server.Engine()).Register(router)
}
