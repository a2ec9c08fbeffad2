package i18n

var ALLOW_LANG = map[string]bool{
	"en": true,
}

const DEFAULT_LANG = "en"

const (
	ERROR_INTERNAL               = "error.internal"
	ERROR_NOT_FOUND              = "error.notfound"
	ERROR_CONVERSATION_NOT_FOUND = "error.conversation.notfound"
	ERROR_KNOWLEDGE_NOT_FOUND    = "error.knowledge.notfound"
	ERROR_INVALIDARGUMENT        = "error.invalidargument"
	ERROR_INVALID_SESSION_ID     = "error.invalid.sessionid"
	ERROR_MESSAGE_EMPTY          = "error.message.empty"
	ERROR_MESSAGE_TOO_LONG       = "error.message.toolong"
	ERROR_TOO_MANY_REQUESTS      = "error.tooManyRequests"
	ERROR_DATABASE               = "error.database"
	ERROR_CONFIGURATION          = "error.configuration"
	ERROR_UNAUTHORIZED           = "error.unauthorized"
	ERROR_FORBIDDEN              = "error.forbidden"
	ERROR_UNSUPPORTED_CHANNEL    = "error.unsupported.channel"
	ERROR_REQUEST_TOO_LARGE      = "error.request.toolarge"

	ERROR_LLM_QUOTA            = "error.llm.quota"
	ERROR_LLM_AUTH             = "error.llm.auth"
	ERROR_LLM_RATE_LIMIT       = "error.llm.ratelimit"
	ERROR_LLM_CONTEXT_LENGTH   = "error.llm.contextlength"
	ERROR_LLM_MODEL_NOT_FOUND  = "error.llm.modelnotfound"
	ERROR_LLM_UNAVAILABLE      = "error.llm.unavailable"
	ERROR_LLM_CONNECTION       = "error.llm.connection"
	ERROR_LLM_TIMEOUT          = "error.llm.timeout"
	ERROR_LLM_GENERATE_FAILED  = "error.llm.failed"
	ERROR_LLM_UNKNOWN_PROVIDER = "error.llm.unknownprovider"
	ERROR_LLM_MISSING_API_KEY  = "error.llm.missingapikey"
)
