package config

// DefaultConfigYAML contains the default configuration YAML content.
// It is written by `tribunal init` and mirrors the loader defaults.
const DefaultConfigYAML = `# Tribunal configuration
#
# Values not specified here use built-in defaults.
# Environment variables override this file: TRIBUNAL_<SECTION>_<KEY>,
# e.g. TRIBUNAL_JUDGES_PROVIDER=heuristic. The LLM key is also read from
# OPENROUTER_API_KEY or OPENAI_API_KEY.

log:
  level: info
  format: auto
  # Extra regular expressions scrubbed from logs and judge rationales.
  redact: []

# Rubric document. Leave empty to use the embedded forensic-audit rubric,
# or point at .tribunal/rubric.yaml after running "tribunal init --rubric".
rubric:
  path: ""

# Evidence stage
producers:
  enabled: [repo, doc, vision]
  timeout: 2m
  max_attempts: 2
  base_delay: 1s
  clone_depth: 50
  clone_timeout: 5m
  max_images: 2
  concepts:
    - Dialectical Synthesis
    - Fan-In
    - Metacognition
    - State Synchronization

# Opinion stage. provider: openai | heuristic (offline, deterministic)
judges:
  provider: openai
  timeout: 3m
  max_attempts: 2
  base_delay: 2s
  rate_limit_rpm: 30

llm:
  base_url: https://openrouter.ai/api/v1
  model: openai/gpt-4o-mini
  vision_model: google/gemini-2.0-flash-001
  temperature: 0.2
  max_tokens: 4096

# Verdict history. backend: sqlite | json (one file per run under path)
store:
  enabled: true
  backend: sqlite
  path: .tribunal/history.db

report:
  dir: .tribunal/reports
  formats: [json, markdown]

server:
  addr: 127.0.0.1:8089
  watch_rubric: false
  max_concurrent: 2

# Crash dumps written when an audit panics. Secrets are redacted from env.
diagnostics:
  crash_dump_dir: .tribunal/crashdumps
  max_crash_dumps: 10
  include_env: false
`
