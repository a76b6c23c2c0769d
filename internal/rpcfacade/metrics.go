// Copyright © 2024 Friendship Engine Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rpcfacade

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/decentraland/friendship-interaction-engine/pkg/friendkind"
)

// procedureCalls implements §4.8's per-procedure result-label counter,
// grounded on the teacher's use of prometheus/client_golang for every RPC
// it exposes (internal/rpc/*'s shared Prometheus middleware).
var procedureCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "friendship_engine",
	Name:      "rpc_calls_total",
	Help:      "Count of RPC facade calls by procedure and result label.",
}, []string{"procedure", "result_label"})

// activeSubscribers is refreshed on a schedule by the service's maintenance
// job (cmd/friendshipsvc) rather than on every Register/OnTransportClosed
// call, since registry.Registry has no subscriber of its own to push to.
var activeSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "friendship_engine",
	Name:      "registry_active_subscribers",
	Help:      "Number of live SubscribeFriendshipEventsUpdates sinks across every user, as of the last maintenance tick.",
})

func init() {
	prometheus.MustRegister(procedureCalls, activeSubscribers)
}

// SetActiveSubscribers records the registry's current subscriber count.
func SetActiveSubscribers(n int) {
	activeSubscribers.Set(float64(n))
}

func resultLabel(err error) string {
	if err == nil {
		return "OK"
	}
	switch friendkind.As(err) {
	case friendkind.Unauthorized:
		return "UNAUTHORIZED"
	case friendkind.BadRequest:
		return "BAD_REQUEST"
	case friendkind.Forbidden:
		return "FORBIDDEN"
	case friendkind.TooManyRequests:
		return "TOO_MANY_REQUESTS"
	default:
		return "INTERNAL_SERVER"
	}
}

func recordCall(procedure string, err error) {
	procedureCalls.WithLabelValues(procedure, resultLabel(err)).Inc()
}
