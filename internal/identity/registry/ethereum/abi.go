package ethereum

// registryABI covers the identity registry functions the service calls.
// getIdentityMetadata reverts for owners with no identity; setIdentity
// reverts on an empty document.
const registryABI = `[
  {
    "type": "function",
    "name": "getIdentity",
    "stateMutability": "view",
    "inputs": [{"name": "owner", "type": "address"}],
    "outputs": [{"name": "", "type": "string"}]
  },
  {
    "type": "function",
    "name": "getIdentityMetadata",
    "stateMutability": "view",
    "inputs": [{"name": "owner", "type": "address"}],
    "outputs": [
      {"name": "document", "type": "string"},
      {"name": "updatedAt", "type": "uint256"},
      {"name": "version", "type": "uint256"},
      {"name": "lastUpdater", "type": "address"}
    ]
  },
  {
    "type": "function",
    "name": "setIdentity",
    "stateMutability": "nonpayable",
    "inputs": [{"name": "document", "type": "string"}],
    "outputs": []
  },
  {
    "type": "function",
    "name": "clearIdentity",
    "stateMutability": "nonpayable",
    "inputs": [],
    "outputs": []
  }
]`

const (
	methodGetIdentity         = "getIdentity"
	methodGetIdentityMetadata = "getIdentityMetadata"
	methodSetIdentity         = "setIdentity"
	methodClearIdentity       = "clearIdentity"
)
