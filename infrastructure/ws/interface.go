package ws

type IHub interface {
	Run()
	RegisterClient(client *UserClient)
	UnregisterClient(client *UserClient)
	SendToUser(userId string, message []byte)
	Broadcast(message []byte)
	ConnectionCount() int
	SetOnClientUnregister(callback func(client *UserClient) error)
}
