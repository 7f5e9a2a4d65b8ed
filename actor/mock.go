package actor

//go:generate go tool mockgen -destination=../internal/testutil/actormock/actormock.go -package=actormock . Ref,Scheduler,Cancellable
