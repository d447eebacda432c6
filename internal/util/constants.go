package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

const (
	MimeJSON = "application/json"
)

// 作答持久化状态
const (
	PersistPending = "pending"
	PersistSaved   = "saved"
	PersistFailed  = "failed"
)

// RoutingKeyAttemptCompleted 作答完成事件的路由键
const RoutingKeyAttemptCompleted = "attempt.completed"
