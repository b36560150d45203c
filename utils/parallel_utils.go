package utils

// PartitionMap splits the index range [0, MaxIndex) into ParallelDegree
// contiguous buckets whose sizes differ by at most one.
type PartitionMap struct {
	MaxIndex       int // MaxIndex is partitioned into ParallelDegree partitions
	ParallelDegree int
	Partitions     [][2]int // Beginning and end index of partitions
}

func NewPartitionMap(ParallelDegree, maxIndex int) (pm *PartitionMap) {
	if ParallelDegree < 1 {
		ParallelDegree = 1
	}
	pm = &PartitionMap{
		MaxIndex:       maxIndex,
		ParallelDegree: ParallelDegree,
		Partitions:     make([][2]int, ParallelDegree),
	}
	var (
		npart     = maxIndex / ParallelDegree
		remainder = maxIndex % ParallelDegree
	)
	// the remainder goes to the first buckets, one each
	for n := 0; n < ParallelDegree; n++ {
		kMin := n*npart + min(n, remainder)
		kMax := kMin + npart
		if n < remainder {
			kMax++
		}
		pm.Partitions[n] = [2]int{kMin, kMax}
	}
	return
}

// GetBucket returns the bucket holding index k along with the bucket range.
// The bucket number is -1 when k is outside [0, MaxIndex).
func (pm *PartitionMap) GetBucket(k int) (bucketNum, min, max int) {
	_, bucketNum, min, max = pm.getBucketWithTryCount(k)
	return
}

func (pm *PartitionMap) getBucketWithTryCount(k int) (tryCount, bucketNum, min, max int) {
	if k < 0 || k >= pm.MaxIndex {
		return 0, -1, 0, 0
	}
	// Initial guess
	bucketNum = int(float64(pm.ParallelDegree*k) / float64(pm.MaxIndex))
	for {
		if min, max = pm.GetBucketRange(bucketNum); min <= k && k < max {
			return
		}
		if min > k {
			bucketNum--
		} else {
			bucketNum++
		}
		if bucketNum == -1 || bucketNum == pm.ParallelDegree {
			return 0, -1, 0, 0
		}
		tryCount++
	}
}

func (pm *PartitionMap) GetBucketRange(bucketNum int) (kMin, kMax int) {
	kMin, kMax = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

// Owner is the bucket (rank) owning index k.
func (pm *PartitionMap) Owner(k int) (bn int) {
	bn, _, _ = pm.GetBucket(k)
	return
}
