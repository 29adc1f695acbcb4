package chain

// Minimal contract interfaces. Only the methods and events the orchestrator
// uses are declared.

const policyLedgerABI = `[
  {"type":"function","name":"createPolicy","stateMutability":"nonpayable",
   "inputs":[{"name":"input","type":"tuple","components":[
     {"name":"policyHolder","type":"address"},
     {"name":"riskTier","type":"uint8"},
     {"name":"premiumAmount","type":"uint256"},
     {"name":"coverageAmount","type":"uint256"},
     {"name":"startDate","type":"uint256"},
     {"name":"endDate","type":"uint256"},
     {"name":"assetIdentifier","type":"string"},
     {"name":"policyDetailsHash","type":"bytes32"}]}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"updatePolicyStatus","stateMutability":"nonpayable",
   "inputs":[{"name":"policyId","type":"uint256"},{"name":"newStatus","type":"uint8"}],"outputs":[]},
  {"type":"function","name":"getPolicyEssentialDetails","stateMutability":"view",
   "inputs":[{"name":"policyId","type":"uint256"}],
   "outputs":[{"name":"id","type":"uint256"},{"name":"holder","type":"address"},{"name":"status","type":"uint8"},{"name":"coverageAmount","type":"uint256"}]},
  {"type":"function","name":"getPolicyFinancialAndDateTerms","stateMutability":"view",
   "inputs":[{"name":"policyId","type":"uint256"}],
   "outputs":[{"name":"premiumAmount","type":"uint256"},{"name":"lastPremiumPaidDate","type":"uint256"},{"name":"riskTier","type":"uint8"},{"name":"startDate","type":"uint256"},{"name":"endDate","type":"uint256"}]},
  {"type":"function","name":"getPolicyAssetIdentifier","stateMutability":"view",
   "inputs":[{"name":"policyId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"getPolicyDetailsHash","stateMutability":"view",
   "inputs":[{"name":"policyId","type":"uint256"}],"outputs":[{"name":"","type":"bytes32"}]},
  {"type":"function","name":"getUserPolicyIds","stateMutability":"view",
   "inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"event","name":"PolicyCreated","anonymous":false,
   "inputs":[{"name":"policyId","type":"uint256","indexed":true},{"name":"policyHolder","type":"address","indexed":true},{"name":"premiumAmount","type":"uint256","indexed":false},{"name":"coverageAmount","type":"uint256","indexed":false}]}
]`

const oracleRelayABI = `[
  {"type":"function","name":"updateKycStatus","stateMutability":"nonpayable",
   "inputs":[{"name":"user","type":"address"},{"name":"isVerified","type":"bool"}],"outputs":[]},
  {"type":"function","name":"getClaimDecision","stateMutability":"view",
   "inputs":[{"name":"policyId","type":"uint256"},{"name":"claimId","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple","components":[
     {"name":"policyId","type":"uint256"},
     {"name":"claimId","type":"uint256"},
     {"name":"isApproved","type":"bool"},
     {"name":"payoutAmount","type":"uint256"},
     {"name":"timestamp","type":"uint256"}]}]}
]`

const tokenABI = `[
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"mint","stateMutability":"nonpayable",
   "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"transfer","stateMutability":"nonpayable",
   "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const fundManagerABI = `[
  {"type":"function","name":"collectPremium","stateMutability":"nonpayable",
   "inputs":[{"name":"policyId","type":"uint256"},{"name":"payer","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"processClaimPayout","stateMutability":"nonpayable",
   "inputs":[{"name":"policyId","type":"uint256"},{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`
