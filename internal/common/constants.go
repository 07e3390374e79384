package common

// Income groups
const (
	LabelAtMost50K = "<=50K"
	LabelAbove50K  = ">50K"
)

// Environment variable keys
const (
	EnvConfigFile       = "CONFIG_FILE"
	EnvServerPort       = "SERVER_PORT"
	EnvDataPath         = "DATA_PATH"
	EnvTrainingDataPath = "TRAINING_DATA_PATH"
	EnvVocabularyPath   = "VOCABULARY_PATH"
	EnvModelBackend     = "MODEL_BACKEND"
	EnvModelPath        = "MODEL_PATH"
	EnvScriptPath       = "SCRIPT_PATH"
	EnvPythonPath       = "PYTHON_PATH"
	EnvScriptTimeout    = "SCRIPT_TIMEOUT"
	EnvFitTimeout       = "FIT_TIMEOUT"
	EnvLearningRate     = "LEARNING_RATE"
	EnvEpochs           = "EPOCHS"
	EnvL2               = "L2_PENALTY"
	EnvParallelism      = "PARALLELISM"
	EnvImportancePath   = "IMPORTANCE_PATH"
	EnvRequestTimeout   = "REQUEST_TIMEOUT"
	EnvLogLevel         = "LOG_LEVEL"
)

// Model backends
const (
	BackendLogistic = "logistic"
	BackendScript   = "script"
)

// Configuration defaults
const (
	DefaultServerPort     = 8080
	DefaultModelBackend   = BackendLogistic
	DefaultModelPath      = "models/income_model.pkl"
	DefaultImportancePath = "models/attribution_importance.json"
	DefaultLearningRate   = 0.1
	DefaultEpochs         = 500
	DefaultL2             = 0.001
	DefaultParallelism    = 4
	DefaultLogLevel       = "info"
)
